package file

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	docs *documentStore
}

func (wr *WorkflowRepository) GetAll(_ context.Context) ([]*models.Workflow, error) {
	return wr.filter(func(*models.Workflow) bool { return true })
}

func (wr *WorkflowRepository) GetByCategory(_ context.Context, category models.WorkflowCategory) ([]*models.Workflow, error) {
	return wr.filter(func(w *models.Workflow) bool { return w.Category == category })
}

func (wr *WorkflowRepository) filter(keep func(*models.Workflow) bool) ([]*models.Workflow, error) {
	docs := wr.docs
	docs.mu.RLock()
	defer docs.mu.RUnlock()

	ids, err := docs.ids()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		var workflow models.Workflow

		found, err := docs.read(id, &workflow)
		if err != nil {
			return nil, persistence.NewWorkflowError("GetAll", id, err)
		}

		if found && keep(&workflow) {
			workflows = append(workflows, &workflow)
		}
	}

	slices.SortStableFunc(workflows, func(a, b *models.Workflow) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return workflows, nil
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, workflowID string) (*models.Workflow, error) {
	docs := wr.docs
	docs.mu.RLock()
	defer docs.mu.RUnlock()

	return wr.load(workflowID)
}

func (wr *WorkflowRepository) load(workflowID string) (*models.Workflow, error) {
	if err := validateID(workflowID); err != nil {
		return nil, persistence.NewWorkflowError("GetByID", workflowID, err)
	}

	var workflow models.Workflow

	found, err := wr.docs.read(workflowID, &workflow)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", workflowID, err)
	}

	if !found {
		return nil, persistence.NewWorkflowError("GetByID", workflowID, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

// Save saves a workflow to the file system.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if err := validateID(workflow.ID); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	docs := wr.docs
	docs.mu.Lock()
	defer docs.mu.Unlock()

	stored := *workflow
	if existing, err := wr.load(workflow.ID); err == nil {
		stored.Stats = existing.Stats
	}

	if err := docs.write(workflow.ID, &stored); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// Delete removes a workflow by its ID.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	docs := wr.docs
	docs.mu.Lock()
	defer docs.mu.Unlock()

	removed, err := docs.remove(id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if !removed {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// RecordExecution updates stats under the repository lock. Only one process may own the directory.
func (wr *WorkflowRepository) RecordExecution(_ context.Context, workflowID string, status models.ExecutionStatus, durationMs int64, at time.Time) (*models.ExecutionStats, error) {
	docs := wr.docs
	docs.mu.Lock()
	defer docs.mu.Unlock()

	workflow, err := wr.load(workflowID)
	if err != nil {
		return nil, err
	}

	workflow.Stats.Record(status, durationMs, at)

	if err := docs.write(workflowID, workflow); err != nil {
		return nil, persistence.NewWorkflowError("RecordExecution", workflowID, err)
	}

	return &workflow.Stats, nil
}
