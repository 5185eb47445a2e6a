package workflow

import (
	"context"
	"fmt"

	"github.com/dukex/storeflow/pkg/eventbus"
	"github.com/dukex/storeflow/pkg/events"
	"github.com/dukex/storeflow/pkg/models"
)

// RegisterHandlers subscribes the engine to the inbound events it acts on.
func (e *Engine) RegisterHandlers(subscriber eventbus.EventSubscriber) error {
	if err := subscriber.Handle(events.WorkflowTriggeredEvent, e.HandleWorkflowTriggered); err != nil {
		return fmt.Errorf("failed to register %s handler: %w", events.WorkflowTriggeredEvent, err)
	}

	if err := subscriber.Handle(events.ApprovalDecidedEvent, e.HandleApprovalDecided); err != nil {
		return fmt.Errorf("failed to register %s handler: %w", events.ApprovalDecidedEvent, err)
	}

	return nil
}

// HandleApprovalDecided applies a decision received on the bus. Decisions for executions that
// are no longer waiting are dropped so the message is not redelivered forever.
func (e *Engine) HandleApprovalDecided(ctx context.Context, event any) error {
	var decided *events.ApprovalDecided

	switch ev := event.(type) {
	case *events.ApprovalDecided:
		decided = ev
	case events.ApprovalDecided:
		decided = &ev
	default:
		return fmt.Errorf("unexpected event %T", event)
	}

	_, err := e.ResolveApproval(ctx, decided.ExecutionID, decided.NodeID, decided.Decision)
	if err != nil && (IsNotFound(err) || IsInvalidState(err) || IsValidationError(err)) {
		e.logger.WarnContext(ctx, "ignoring approval decision",
			"execution_id", decided.ExecutionID, "node_id", decided.NodeID, "decided_by", decided.DecidedBy, "error", err)

		return nil
	}

	return err
}

// HandleWorkflowTriggered runs the named workflow, or every active workflow whose enabled event
// trigger listens for the event name.
func (e *Engine) HandleWorkflowTriggered(ctx context.Context, event any) error {
	var triggered *events.WorkflowTriggered

	switch ev := event.(type) {
	case *events.WorkflowTriggered:
		triggered = ev
	case events.WorkflowTriggered:
		triggered = &ev
	default:
		return fmt.Errorf("unexpected event %T", event)
	}

	if triggered.WorkflowID != "" {
		return e.runTriggered(ctx, triggered.WorkflowID, triggered.TriggerData)
	}

	workflows, err := e.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	for _, workflow := range workflows {
		if !workflow.IsExecutable() {
			continue
		}

		for _, trigger := range workflow.Triggers {
			if !trigger.Enabled || trigger.Type != models.TriggerTypeEvent || trigger.Event != triggered.EventName {
				continue
			}

			data := TriggerData(trigger, triggered.TriggerData)
			if err := e.runTriggered(ctx, workflow.ID, data); err != nil {
				return err
			}
		}
	}

	return nil
}

// runTriggered executes a workflow for an inbound event. Definition problems are logged, not
// retried: redelivery cannot fix them.
func (e *Engine) runTriggered(ctx context.Context, workflowID string, data map[string]any) error {
	execution, err := e.ExecuteWorkflow(ctx, workflowID, data)
	if err != nil {
		if IsNotFound(err) || IsInvalidState(err) || IsValidationError(err) {
			e.logger.WarnContext(ctx, "triggered workflow not executed", "workflow_id", workflowID, "error", err)

			return nil
		}

		return err
	}

	e.logger.InfoContext(ctx, "triggered workflow executed", "workflow_id", workflowID, "execution_id", execution.ID, "status", execution.Status)

	return nil
}

// TriggerData builds the trigger payload for a workflow trigger: its static data overlaid with
// the payload of the firing, plus the trigger id.
func TriggerData(trigger models.WorkflowTrigger, payload map[string]any) map[string]any {
	data := make(map[string]any, len(trigger.Data)+len(payload)+1)

	for k, v := range trigger.Data {
		data[k] = v
	}

	for k, v := range payload {
		data[k] = v
	}

	data["trigger_id"] = trigger.ID

	return data
}
