package workflow

import (
	"testing"

	"github.com/dukex/storeflow/pkg/events"
	"github.com/dukex/storeflow/pkg/mocks"
	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegisterHandlers(t *testing.T) {
	env := newTestEnv(t)

	bus := &mocks.MockEventBus{}
	bus.On("Handle", events.WorkflowTriggeredEvent, mock.Anything).Return(nil)
	bus.On("Handle", events.ApprovalDecidedEvent, mock.Anything).Return(nil)

	require.NoError(t, env.engine.RegisterHandlers(bus))
	bus.AssertExpectations(t)
}

func TestHandleWorkflowTriggered_ByEventName(t *testing.T) {
	env := newTestEnv(t)

	matching := env.store(t, testutil.CreateTestWorkflow([]*models.WorkflowNode{triggerNode()}, func(w *models.Workflow) {
		w.Triggers = []models.WorkflowTrigger{{
			ID:      "on-order",
			Type:    models.TriggerTypeEvent,
			Event:   "order.created",
			Data:    map[string]any{"channel": "web"},
			Enabled: true,
		}}
	}))

	disabled := env.store(t, testutil.CreateTestWorkflow([]*models.WorkflowNode{triggerNode()}, func(w *models.Workflow) {
		w.Triggers = []models.WorkflowTrigger{{ID: "off", Type: models.TriggerTypeEvent, Event: "order.created"}}
	}))

	paused := env.store(t, testutil.CreateTestWorkflow([]*models.WorkflowNode{triggerNode()}, func(w *models.Workflow) {
		w.Status = models.WorkflowStatusPaused
		w.Triggers = []models.WorkflowTrigger{{ID: "on-order", Type: models.TriggerTypeEvent, Event: "order.created", Enabled: true}}
	}))

	err := env.engine.HandleWorkflowTriggered(t.Context(), &events.WorkflowTriggered{
		BaseEvent:   events.NewBaseEvent(events.WorkflowTriggeredEvent, ""),
		EventName:   "order.created",
		TriggerData: map[string]any{"order_id": "SO-42"},
	})
	require.NoError(t, err)

	executions, err := env.engine.GetExecutions(t.Context(), matching.ID)
	require.NoError(t, err)
	require.Len(t, executions, 1)

	assert.Equal(t, map[string]any{"channel": "web", "order_id": "SO-42", "trigger_id": "on-order"}, executions[0].TriggerData)

	for _, id := range []string{disabled.ID, paused.ID} {
		executions, err := env.engine.GetExecutions(t.Context(), id)
		require.NoError(t, err)
		assert.Empty(t, executions)
	}
}

func TestHandleWorkflowTriggered_ByWorkflowID(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.store(t, testutil.CreateTestWorkflow([]*models.WorkflowNode{triggerNode()}))

	err := env.engine.HandleWorkflowTriggered(t.Context(), events.WorkflowTriggered{
		BaseEvent: events.NewBaseEvent(events.WorkflowTriggeredEvent, workflow.ID),
	})
	require.NoError(t, err)

	executions, err := env.engine.GetExecutions(t.Context(), workflow.ID)
	require.NoError(t, err)
	assert.Len(t, executions, 1)

	// Unknown workflows are dropped rather than redelivered.
	err = env.engine.HandleWorkflowTriggered(t.Context(), &events.WorkflowTriggered{
		BaseEvent: events.NewBaseEvent(events.WorkflowTriggeredEvent, "missing"),
	})
	require.NoError(t, err)
}

func TestHandleWorkflowTriggered_UnexpectedPayload(t *testing.T) {
	err := newTestEnv(t).engine.HandleWorkflowTriggered(t.Context(), "order.created")
	require.Error(t, err)
}

func TestHandleApprovalDecided(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.store(t, approvalWorkflow())

	execution, err := env.engine.ExecuteWorkflow(t.Context(), workflow.ID, nil)
	require.NoError(t, err)

	decided := &events.ApprovalDecided{
		BaseEvent:   events.NewBaseEvent(events.ApprovalDecidedEvent, workflow.ID),
		ExecutionID: execution.ID,
		NodeID:      "approve",
		Decision:    models.ApprovalApproved,
		DecidedBy:   "finance@example.com",
	}

	require.NoError(t, env.engine.HandleApprovalDecided(t.Context(), decided))

	stored, err := env.engine.GetExecution(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)

	// A second delivery finds nothing to resume and is acknowledged.
	require.NoError(t, env.engine.HandleApprovalDecided(t.Context(), decided))
}

func TestTriggerData(t *testing.T) {
	trigger := models.WorkflowTrigger{ID: "nightly", Data: map[string]any{"report": "sales", "days": 1}}

	data := TriggerData(trigger, map[string]any{"days": 7})

	assert.Equal(t, map[string]any{"report": "sales", "days": 7, "trigger_id": "nightly"}, data)
	assert.Equal(t, 1, trigger.Data["days"])
}
