// Package persistence provides the storage abstraction for workflows and their executions.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/storeflow/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions. Lists are ordered by creation time.
// Stats of a stored workflow belong to RecordExecution: Save leaves them untouched.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetByCategory(ctx context.Context, category models.WorkflowCategory) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error

	// RecordExecution folds one terminal execution into the workflow's stats atomically
	// and returns the updated stats.
	RecordExecution(ctx context.Context, workflowID string, status models.ExecutionStatus, durationMs int64, at time.Time) (*models.ExecutionStats, error)
}

// ExecutionRepository stores executions. Lists are ordered by start time.
// Executions outlive their workflow so history stays available for analytics.
type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	GetAll(ctx context.Context) ([]*models.WorkflowExecution, error)
	GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)
	GetByStatus(ctx context.Context, statuses ...models.ExecutionStatus) ([]*models.WorkflowExecution, error)
}
