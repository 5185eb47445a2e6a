package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ExecutionStatus is the state of a single workflow run.
type ExecutionStatus string

const (
	ExecutionStatusRunning         ExecutionStatus = "running"
	ExecutionStatusCompleted       ExecutionStatus = "completed"
	ExecutionStatusFailed          ExecutionStatus = "failed"
	ExecutionStatusCancelled       ExecutionStatus = "cancelled"
	ExecutionStatusWaitingApproval ExecutionStatus = "waiting_approval"
)

var executionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionStatusRunning: {
		ExecutionStatusCompleted,
		ExecutionStatusFailed,
		ExecutionStatusCancelled,
		ExecutionStatusWaitingApproval,
	},
	ExecutionStatusWaitingApproval: {
		ExecutionStatusRunning,
		ExecutionStatusCancelled,
	},
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	return slices.Contains(executionTransitions[s], next)
}

// IsTerminal reports whether no further transitions are possible.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// LogStatus is the status of a single execution log entry.
type LogStatus string

const (
	LogStatusStarted   LogStatus = "started"
	LogStatusCompleted LogStatus = "completed"
	LogStatusFailed    LogStatus = "failed"
	LogStatusSkipped   LogStatus = "skipped"
)

// ExecutionLogEntry is one append-only audit record for a node event.
type ExecutionLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	NodeID     string    `json:"node_id"`
	NodeType   NodeType  `json:"node_type"`
	Status     LogStatus `json:"status"`
	Message    string    `json:"message"`
	DurationMs *int64    `json:"duration_ms,omitempty"`
	Data       any       `json:"data,omitempty"`
}

// ApprovalDecision is the outcome supplied by an approver.
type ApprovalDecision string

const (
	ApprovalApproved ApprovalDecision = "approved"
	ApprovalRejected ApprovalDecision = "rejected"
)

// ApprovalRequest is a pending approval raised by an approval node.
type ApprovalRequest struct {
	ID          string     `json:"id"`
	NodeID      string     `json:"node_id"`
	Approvers   []string   `json:"approvers"`
	Message     string     `json:"message"`
	RequestedAt time.Time  `json:"requested_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the request has a deadline that is at or before now.
func (r ApprovalRequest) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

var (
	ErrInvalidTransition = errors.New("invalid execution status transition")
	ErrWriteOutsideScope = errors.New("variable write outside declared scope")
	ErrNoPendingApproval = errors.New("no pending approval for node")
)

// WorkflowExecution is one runtime instance of a workflow.
// Variables is shared by every node of the run and is the only channel between nodes.
type WorkflowExecution struct {
	ID               string                     `json:"id"`
	WorkflowID       string                     `json:"workflow_id"`
	WorkflowVersion  int                        `json:"workflow_version"`
	Status           ExecutionStatus            `json:"status"`
	StartedAt        time.Time                  `json:"started_at"`
	CompletedAt      *time.Time                 `json:"completed_at,omitempty"`
	DurationMs       *int64                     `json:"duration_ms,omitempty"`
	TriggerData      map[string]any             `json:"trigger_data"`
	ExecutionLog     []ExecutionLogEntry        `json:"execution_log"`
	CurrentNode      string                     `json:"current_node,omitempty"`
	Variables        map[string]any             `json:"variables"`
	PendingApprovals map[string]ApprovalRequest `json:"pending_approvals,omitempty"`
	ErrorMessage     string                     `json:"error_message,omitempty"`

	writeScope []string
}

// NewExecution seeds a running execution: workflow defaults overlaid with trigger data.
func NewExecution(id string, workflow *Workflow, triggerData map[string]any, now time.Time) *WorkflowExecution {
	variables := make(map[string]any, len(workflow.Variables)+len(triggerData))
	for k, v := range workflow.Variables {
		variables[k] = v
	}

	for k, v := range triggerData {
		variables[k] = v
	}

	if triggerData == nil {
		triggerData = map[string]any{}
	}

	return &WorkflowExecution{
		ID:              id,
		WorkflowID:      workflow.ID,
		WorkflowVersion: workflow.Version,
		Status:          ExecutionStatusRunning,
		StartedAt:       now.UTC(),
		TriggerData:     triggerData,
		ExecutionLog:    []ExecutionLogEntry{},
		Variables:       variables,
	}
}

// Transition moves the execution to next, enforcing the status machine.
func (e *WorkflowExecution) Transition(next ExecutionStatus) error {
	if !e.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, next)
	}

	e.Status = next

	return nil
}

// Finish moves the execution to a terminal status and stamps completion time and duration.
func (e *WorkflowExecution) Finish(status ExecutionStatus, errorMessage string, now time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}

	if err := e.Transition(status); err != nil {
		return err
	}

	completedAt := now.UTC()
	duration := completedAt.Sub(e.StartedAt).Milliseconds()
	e.CompletedAt = &completedAt
	e.DurationMs = &duration
	e.ErrorMessage = errorMessage

	return nil
}

// AppendLog adds an entry. Timestamps never go backwards within one log.
func (e *WorkflowExecution) AppendLog(entry ExecutionLogEntry) {
	if n := len(e.ExecutionLog); n > 0 && entry.Timestamp.Before(e.ExecutionLog[n-1].Timestamp) {
		entry.Timestamp = e.ExecutionLog[n-1].Timestamp
	}

	e.ExecutionLog = append(e.ExecutionLog, entry)
}

// SetWriteScope limits SetVariable to the given keys. An empty scope allows every key.
func (e *WorkflowExecution) SetWriteScope(keys []string) {
	e.writeScope = keys
}

// SetVariable writes to the shared bag, honoring the active write scope.
func (e *WorkflowExecution) SetVariable(key string, value any) error {
	if len(e.writeScope) > 0 && !slices.Contains(e.writeScope, key) {
		return fmt.Errorf("%w: %q (allowed: %v)", ErrWriteOutsideScope, key, e.writeScope)
	}

	if e.Variables == nil {
		e.Variables = make(map[string]any)
	}

	e.Variables[key] = value

	return nil
}

// AwaitApproval records a pending approval and parks the execution.
func (e *WorkflowExecution) AwaitApproval(request ApprovalRequest) error {
	if e.Status != ExecutionStatusWaitingApproval {
		if err := e.Transition(ExecutionStatusWaitingApproval); err != nil {
			return err
		}
	}

	if e.PendingApprovals == nil {
		e.PendingApprovals = make(map[string]ApprovalRequest)
	}

	e.PendingApprovals[request.NodeID] = request

	return nil
}

// TakeApproval removes and returns the pending approval raised by nodeID.
func (e *WorkflowExecution) TakeApproval(nodeID string) (ApprovalRequest, error) {
	request, ok := e.PendingApprovals[nodeID]
	if !ok {
		return ApprovalRequest{}, fmt.Errorf("%w %s", ErrNoPendingApproval, nodeID)
	}

	delete(e.PendingApprovals, nodeID)

	return request, nil
}

// Clone returns a deep-enough copy for handing to readers outside the engine.
func (e *WorkflowExecution) Clone() *WorkflowExecution {
	clone := *e
	clone.writeScope = nil
	clone.ExecutionLog = slices.Clone(e.ExecutionLog)
	clone.Variables = cloneMap(e.Variables)
	clone.TriggerData = cloneMap(e.TriggerData)

	if e.PendingApprovals != nil {
		clone.PendingApprovals = make(map[string]ApprovalRequest, len(e.PendingApprovals))
		for k, v := range e.PendingApprovals {
			clone.PendingApprovals[k] = v
		}
	}

	return &clone
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}

	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}
