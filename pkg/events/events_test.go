package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovalDecided_JSONSerialization(t *testing.T) {
	original := &ApprovalDecided{
		BaseEvent:   NewBaseEvent(ApprovalDecidedEvent, "wf-123"),
		ExecutionID: "exec-456",
		NodeID:      "manager-approval",
		Decision:    models.ApprovalApproved,
		DecidedBy:   "ops@example.com",
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"type":"approval.decided"`)
	assert.Contains(t, string(jsonData), `"decision":"approved"`)

	var decoded ApprovalDecided
	require.NoError(t, json.Unmarshal(jsonData, &decoded))

	assert.Equal(t, ApprovalDecidedEvent, decoded.GetType())
	assert.Equal(t, original.ExecutionID, decoded.ExecutionID)
	assert.Equal(t, original.NodeID, decoded.NodeID)
	assert.Equal(t, original.Decision, decoded.Decision)
}

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent(ExecutionStartedEvent, "wf-1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, ExecutionStartedEvent, event.Type)
	assert.Equal(t, "wf-1", event.WorkflowID)
	assert.False(t, event.Timestamp.IsZero())
	assert.NotNil(t, event.Metadata)
}
