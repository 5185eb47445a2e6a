package workflow

import (
	"errors"
	"fmt"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/persistence"
)

var (
	// Lookup failures (404).
	ErrWorkflowNotFound  = persistence.ErrWorkflowNotFound
	ErrExecutionNotFound = persistence.ErrExecutionNotFound

	// Operation not allowed in the current state (409).
	ErrInvalidState        = errors.New("invalid state")
	ErrWorkflowNotActive   = fmt.Errorf("%w: workflow is not active", ErrInvalidState)
	ErrWorkflowExists      = fmt.Errorf("%w: workflow already exists", ErrInvalidState)
	ErrExecutionFinished   = fmt.Errorf("%w: execution already finished", ErrInvalidState)
	ErrExecutionBusy       = fmt.Errorf("%w: execution is being processed", ErrInvalidState)
	ErrNotAwaitingApproval = fmt.Errorf("%w: execution is not waiting for approval", ErrInvalidState)

	// Definition problems (400).
	ErrInvalidWorkflow = errors.New("invalid workflow")
	ErrInvalidGraph    = errors.New("invalid workflow graph")
	ErrInvalidDecision = errors.New("invalid approval decision")
)

// GraphError describes a structural problem in a workflow's node graph.
type GraphError struct {
	WorkflowID string
	Reason     string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("workflow %s: %s", e.WorkflowID, e.Reason)
}

func (e *GraphError) Unwrap() error {
	return ErrInvalidGraph
}

// HandlerError is a node handler failure. Its message is the handler's, unchanged.
type HandlerError struct {
	NodeID   string
	NodeType models.NodeType
	Err      error
}

func (e *HandlerError) Error() string {
	return e.Err.Error()
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// ValidationError wraps a rejected workflow definition with the offending field.
type ValidationError struct {
	Op      string
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Field, e.Message)
	}

	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a workflow or execution lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) || errors.Is(err, ErrExecutionNotFound)
}

// IsInvalidState reports whether err rejects an operation because of current status.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsValidationError reports whether err is caused by the caller's input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidWorkflow) ||
		errors.Is(err, ErrInvalidGraph) ||
		errors.Is(err, ErrInvalidDecision)
}
