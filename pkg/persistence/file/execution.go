package file

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/persistence"
)

// ExecutionRepository handles execution-related file operations.
type ExecutionRepository struct {
	docs *documentStore
}

// Save saves an execution to the file system.
func (er *ExecutionRepository) Save(_ context.Context, execution *models.WorkflowExecution) error {
	if err := validateID(execution.ID); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	er.docs.mu.Lock()
	defer er.docs.mu.Unlock()

	if err := er.docs.write(execution.ID, execution); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

// GetByID retrieves an execution by its ID from the file system.
func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	er.docs.mu.RLock()
	defer er.docs.mu.RUnlock()

	var execution models.WorkflowExecution

	found, err := er.docs.read(id, &execution)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	return &execution, nil
}

func (er *ExecutionRepository) GetAll(_ context.Context) ([]*models.WorkflowExecution, error) {
	return er.filter(func(*models.WorkflowExecution) bool { return true })
}

func (er *ExecutionRepository) GetByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	return er.filter(func(e *models.WorkflowExecution) bool { return e.WorkflowID == workflowID })
}

func (er *ExecutionRepository) GetByStatus(_ context.Context, statuses ...models.ExecutionStatus) ([]*models.WorkflowExecution, error) {
	return er.filter(func(e *models.WorkflowExecution) bool { return slices.Contains(statuses, e.Status) })
}

func (er *ExecutionRepository) filter(keep func(*models.WorkflowExecution) bool) ([]*models.WorkflowExecution, error) {
	er.docs.mu.RLock()
	defer er.docs.mu.RUnlock()

	ids, err := er.docs.ids()
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]*models.WorkflowExecution, 0, len(ids))

	for _, id := range ids {
		var execution models.WorkflowExecution

		found, err := er.docs.read(id, &execution)
		if err != nil {
			return nil, persistence.NewExecutionError("GetAll", id, err)
		}

		if found && keep(&execution) {
			executions = append(executions, &execution)
		}
	}

	slices.SortStableFunc(executions, func(a, b *models.WorkflowExecution) int {
		return cmp.Or(a.StartedAt.Compare(b.StartedAt), cmp.Compare(a.ID, b.ID))
	})

	return executions, nil
}
