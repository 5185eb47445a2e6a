package workflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/dukex/storeflow/pkg/events"
	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ExecuteWorkflow runs the workflow from its trigger node and returns the execution as it stands
// when the walk stops: completed, failed, cancelled or waiting for approval.
// Lookup, state and graph problems are returned as errors before any execution exists.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID string, triggerData map[string]any) (*models.WorkflowExecution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
	)
	defer span.End()

	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if !workflow.IsExecutable() {
		err := fmt.Errorf("%w: %s is %s", ErrWorkflowNotActive, workflowID, workflow.Status)
		otelhelper.SetError(span, err)

		return nil, err
	}

	trigger, err := ValidateGraph(workflow)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	execution := models.NewExecution(uuid.New().String(), workflow, triggerData, e.now())
	span.SetAttributes(
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.Int(otelhelper.WorkflowVersionKey, workflow.Version),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r, err := e.claim(execution.ID, cancel)
	if err != nil {
		return nil, err
	}
	defer e.release(execution.ID, r)

	if err := e.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	logger := e.logger.With("workflow_id", workflowID, "execution_id", execution.ID)
	logger.InfoContext(ctx, "execution started", "version", workflow.Version)

	started := events.ExecutionStarted{
		BaseEvent:       events.NewBaseEvent(events.ExecutionStartedEvent, workflowID),
		ExecutionID:     execution.ID,
		WorkflowVersion: workflow.Version,
		TriggerData:     execution.TriggerData,
	}
	e.publish(ctx, execution.ID, started)

	walkErr := e.walk(runCtx, workflow, execution, []string{trigger.ID})

	if err := e.settle(ctx, r, execution, walkErr); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionStatusKey, string(execution.Status)))

	if execution.Status == models.ExecutionStatusFailed {
		otelhelper.SetError(span, walkErr)
	}

	return execution.Clone(), nil
}

// walk drives a LIFO work list from start until it drains, a node fails, the step budget runs out
// or ctx ends. Successors are pushed in reverse so they pop in connection order and each sibling's
// subtree finishes before the next sibling starts.
func (e *Engine) walk(ctx context.Context, workflow *models.Workflow, execution *models.WorkflowExecution, start []string) error {
	stack := pushReversed(nil, start)
	steps := 0

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := workflow.NodeByID(id)
		if node == nil {
			return &GraphError{WorkflowID: workflow.ID, Reason: fmt.Sprintf("unknown node %q", id)}
		}

		steps++
		if steps > e.maxSteps {
			return &GraphError{
				WorkflowID: workflow.ID,
				Reason:     fmt.Sprintf("step limit of %d node visits exceeded at node %q", e.maxSteps, id),
			}
		}

		if execution.Status == models.ExecutionStatusWaitingApproval {
			if err := execution.Transition(models.ExecutionStatusRunning); err != nil {
				return err
			}
		}

		proceed, err := e.executeNode(ctx, execution, node)

		if saveErr := e.persistence.ExecutionRepository().Save(ctx, execution); saveErr != nil {
			e.logger.ErrorContext(ctx, "failed to save execution progress", "execution_id", execution.ID, "error", saveErr)
		}

		if err != nil {
			return err
		}

		if request, ok := execution.PendingApprovals[node.ID]; ok && node.Type == models.NodeTypeApproval {
			e.publish(ctx, execution.ID, events.ApprovalRequested{
				BaseEvent:   events.NewBaseEvent(events.ApprovalRequestedEvent, workflow.ID),
				ExecutionID: execution.ID,
				NodeID:      node.ID,
				Approvers:   request.Approvers,
				Message:     request.Message,
				ExpiresAt:   request.ExpiresAt,
			})
		}

		if proceed {
			stack = pushReversed(stack, node.Connections)
		}
	}

	return nil
}

func pushReversed(stack []string, ids []string) []string {
	for _, id := range slices.Backward(ids) {
		stack = append(stack, id)
	}

	return stack
}

// executeNode runs one node between its started and completed/failed log entries.
func (e *Engine) executeNode(ctx context.Context, execution *models.WorkflowExecution, node *models.WorkflowNode) (bool, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.node",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	logger := e.logger.With("execution_id", execution.ID, "node_id", node.ID, "node_type", node.Type)
	started := e.now()

	execution.CurrentNode = node.ID
	execution.AppendLog(models.ExecutionLogEntry{
		Timestamp: started.UTC(),
		NodeID:    node.ID,
		NodeType:  node.Type,
		Status:    models.LogStatusStarted,
		Message:   fmt.Sprintf("%s started", node.Name),
	})

	handler, err := e.registry.Handler(node.Type)

	proceed, attempts := false, 0
	if err == nil {
		execution.SetWriteScope(node.Writes)

		proceed, attempts, err = invoke(ctx, node, func(ctx context.Context) (bool, error) {
			return handler.Execute(ctx, execution, node)
		}, func(err error, wait time.Duration) {
			logger.WarnContext(ctx, "node attempt failed, retrying", "error", err, "wait", wait)
		})

		execution.SetWriteScope(nil)
	}

	finished := e.now()
	duration := finished.Sub(started).Milliseconds()

	if err != nil {
		execution.AppendLog(models.ExecutionLogEntry{
			Timestamp:  finished.UTC(),
			NodeID:     node.ID,
			NodeType:   node.Type,
			Status:     models.LogStatusFailed,
			Message:    err.Error(),
			DurationMs: &duration,
			Data:       map[string]any{"attempts": attempts},
		})

		logger.ErrorContext(ctx, "node failed", "error", err, "attempts", attempts)
		otelhelper.SetError(span, err, attribute.String(otelhelper.NodeIDKey, node.ID))

		return false, &HandlerError{NodeID: node.ID, NodeType: node.Type, Err: err}
	}

	execution.AppendLog(models.ExecutionLogEntry{
		Timestamp:  finished.UTC(),
		NodeID:     node.ID,
		NodeType:   node.Type,
		Status:     models.LogStatusCompleted,
		Message:    fmt.Sprintf("%s completed", node.Name),
		DurationMs: &duration,
		Data:       map[string]any{"continue": proceed, "attempts": attempts},
	})

	logger.DebugContext(ctx, "node completed", "continue", proceed, "duration_ms", duration)

	return proceed, nil
}

// settle gives the execution its status once a walk stops and persists it.
// A requested cancel wins over whatever the walk produced.
func (e *Engine) settle(ctx context.Context, r *run, execution *models.WorkflowExecution, walkErr error) error {
	ctx = context.WithoutCancel(ctx)

	cancelled, reason := e.cancelRequested(r)

	switch {
	case cancelled || errors.Is(walkErr, context.Canceled):
		return e.finish(ctx, execution, models.ExecutionStatusCancelled, reason, "")
	case walkErr != nil:
		nodeID := ""

		var handlerErr *HandlerError
		if errors.As(walkErr, &handlerErr) {
			nodeID = handlerErr.NodeID
		}

		return e.finish(ctx, execution, models.ExecutionStatusFailed, walkErr.Error(), nodeID)
	case len(execution.PendingApprovals) > 0:
		if execution.Status != models.ExecutionStatusWaitingApproval {
			if err := execution.Transition(models.ExecutionStatusWaitingApproval); err != nil {
				return err
			}
		}

		e.logger.InfoContext(ctx, "execution waiting for approval", "execution_id", execution.ID, "pending", len(execution.PendingApprovals))

		if err := e.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
			return fmt.Errorf("failed to save execution: %w", err)
		}

		return nil
	default:
		return e.finish(ctx, execution, models.ExecutionStatusCompleted, "", "")
	}
}

// finish moves the execution to a terminal status, stores it, folds it into the workflow stats
// and announces it.
func (e *Engine) finish(ctx context.Context, execution *models.WorkflowExecution, status models.ExecutionStatus, message, nodeID string) error {
	if err := execution.Finish(status, message, e.now()); err != nil {
		return err
	}

	execution.CurrentNode = ""

	if err := e.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	duration := *execution.DurationMs

	_, err := e.persistence.WorkflowRepository().RecordExecution(ctx, execution.WorkflowID, status, duration, *execution.CompletedAt)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to record execution stats", "workflow_id", execution.WorkflowID, "execution_id", execution.ID, "error", err)
	}

	logger := e.logger.With("workflow_id", execution.WorkflowID, "execution_id", execution.ID, "duration_ms", duration)

	switch status {
	case models.ExecutionStatusCompleted:
		logger.InfoContext(ctx, "execution completed")
		e.publish(ctx, execution.ID, events.ExecutionCompleted{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
			DurationMs:  duration,
		})
	case models.ExecutionStatusFailed:
		logger.WarnContext(ctx, "execution failed", "node_id", nodeID, "error", message)
		e.publish(ctx, execution.ID, events.ExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
			NodeID:      nodeID,
			Error:       message,
			DurationMs:  duration,
		})
	default:
		logger.InfoContext(ctx, "execution cancelled", "reason", message)
		e.publish(ctx, execution.ID, events.ExecutionCancelled{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
			Reason:      message,
		})
	}

	return nil
}

// CancelExecution stops a running or waiting execution. A run in flight is interrupted through
// its context and this call waits for it to settle.
func (e *Engine) CancelExecution(ctx context.Context, executionID string) error {
	return e.cancel(ctx, executionID, "")
}

func (e *Engine) cancel(ctx context.Context, executionID, reason string) error {
	e.mu.Lock()

	if r, ok := e.runs[executionID]; ok {
		r.cancelled = true
		r.reason = reason
		r.cancel()
		e.mu.Unlock()

		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}

		execution, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
		if err != nil {
			return err
		}

		if execution.Status != models.ExecutionStatusCancelled {
			return fmt.Errorf("%w: %s is %s", ErrExecutionFinished, executionID, execution.Status)
		}

		return nil
	}

	e.mu.Unlock()

	r, err := e.claim(executionID, func() {})
	if err != nil {
		return err
	}
	defer e.release(executionID, r)

	execution, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrExecutionFinished, executionID, execution.Status)
	}

	return e.finish(ctx, execution, models.ExecutionStatusCancelled, reason, "")
}

// ResolveApproval applies an approver's decision to a pending approval. Approval resumes the walk
// at the approval node's connections; rejection cancels the execution.
func (e *Engine) ResolveApproval(ctx context.Context, executionID, nodeID string, decision models.ApprovalDecision) (*models.WorkflowExecution, error) {
	if decision != models.ApprovalApproved && decision != models.ApprovalRejected {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.resolve_approval",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.NodeIDKey, nodeID),
	)
	defer span.End()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r, err := e.claim(executionID, cancel)
	if err != nil {
		return nil, err
	}
	defer e.release(executionID, r)

	execution, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status != models.ExecutionStatusWaitingApproval {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotAwaitingApproval, executionID, execution.Status)
	}

	if _, err := execution.TakeApproval(nodeID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAwaitingApproval, err)
	}

	e.logger.InfoContext(ctx, "approval decided", "execution_id", executionID, "node_id", nodeID, "decision", decision)

	if decision == models.ApprovalRejected {
		if err := e.finish(ctx, execution, models.ExecutionStatusCancelled, fmt.Sprintf("approval rejected at node %s", nodeID), nodeID); err != nil {
			return nil, err
		}

		return execution.Clone(), nil
	}

	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, execution.WorkflowID)
	if err != nil {
		return nil, err
	}

	if err := execution.Transition(models.ExecutionStatusRunning); err != nil {
		return nil, err
	}

	var walkErr error

	if node := workflow.NodeByID(nodeID); node != nil {
		walkErr = e.walk(runCtx, workflow, execution, node.Connections)
	} else {
		walkErr = &GraphError{WorkflowID: workflow.ID, Reason: fmt.Sprintf("approval node %q no longer exists", nodeID)}
	}

	if err := e.settle(ctx, r, execution, walkErr); err != nil {
		return nil, err
	}

	return execution.Clone(), nil
}

// ExpireApprovals cancels waiting executions holding an approval whose deadline is at or before now.
// It returns how many executions were cancelled.
func (e *Engine) ExpireApprovals(ctx context.Context, now time.Time) (int, error) {
	waiting, err := e.persistence.ExecutionRepository().GetByStatus(ctx, models.ExecutionStatusWaitingApproval)
	if err != nil {
		return 0, fmt.Errorf("failed to list waiting executions: %w", err)
	}

	expired := 0

	for _, execution := range waiting {
		nodeID, ok := expiredApproval(execution, now)
		if !ok {
			continue
		}

		err := e.cancel(ctx, execution.ID, fmt.Sprintf("approval at node %s expired", nodeID))

		switch {
		case err == nil:
			expired++
		case errors.Is(err, ErrInvalidState):
			e.logger.DebugContext(ctx, "skipping expired approval", "execution_id", execution.ID, "error", err)
		default:
			return expired, err
		}
	}

	return expired, nil
}

func expiredApproval(execution *models.WorkflowExecution, now time.Time) (string, bool) {
	for _, nodeID := range slices.Sorted(maps.Keys(execution.PendingApprovals)) {
		if execution.PendingApprovals[nodeID].Expired(now) {
			return nodeID, true
		}
	}

	return "", false
}

func (e *Engine) claim(executionID string, cancel context.CancelFunc) (*run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.runs[executionID]; busy {
		return nil, fmt.Errorf("%w: %s", ErrExecutionBusy, executionID)
	}

	r := &run{cancel: cancel, done: make(chan struct{})}
	e.runs[executionID] = r

	return r, nil
}

func (e *Engine) release(executionID string, r *run) {
	e.mu.Lock()
	delete(e.runs, executionID)
	e.mu.Unlock()

	close(r.done)
}

func (e *Engine) cancelRequested(r *run) (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return r.cancelled, r.reason
}
