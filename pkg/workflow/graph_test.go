package workflow

import (
	"testing"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateGraph(t *testing.T) {
	tests := []struct {
		name   string
		nodes  []*models.WorkflowNode
		reason string
	}{
		{
			name:  "single trigger",
			nodes: []*models.WorkflowNode{triggerNode("notify"), notifyNode("notify")},
		},
		{
			name:  "cycle is allowed",
			nodes: []*models.WorkflowNode{triggerNode("a"), notifyNode("a", "b"), notifyNode("b", "a")},
		},
		{
			name:   "no trigger",
			nodes:  []*models.WorkflowNode{notifyNode("notify")},
			reason: "no trigger node",
		},
		{
			name: "two triggers",
			nodes: []*models.WorkflowNode{
				triggerNode(),
				testutil.CreateTestNode("second", &models.TriggerConfig{}),
			},
			reason: "2 trigger nodes",
		},
		{
			name:   "duplicate id",
			nodes:  []*models.WorkflowNode{triggerNode("notify"), notifyNode("notify"), notifyNode("notify")},
			reason: `duplicate node id "notify"`,
		},
		{
			name:   "unknown connection",
			nodes:  []*models.WorkflowNode{triggerNode("ghost")},
			reason: `unknown node "ghost"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := testutil.CreateTestWorkflow(tt.nodes)

			trigger, err := ValidateGraph(workflow)
			if tt.reason == "" {
				require.NoError(t, err)
				assert.Equal(t, "trigger", trigger.ID)

				return
			}

			require.ErrorIs(t, err, ErrInvalidGraph)
			assert.Contains(t, err.Error(), tt.reason)
			assert.Contains(t, err.Error(), workflow.ID)
			assert.Nil(t, trigger)
		})
	}
}
