package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/persistence"
	"github.com/lib/pq"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Save upserts an execution document.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution.ID == "" {
		return persistence.NewExecutionError("Save", execution.ID, persistence.ErrInvalidID)
	}

	data, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, fmt.Errorf("failed to marshal execution: %w", err))
	}

	query := `
		INSERT INTO workflow_executions (id, workflow_id, status, started_at, completed_at, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			data = EXCLUDED.data
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		string(execution.Status),
		execution.StartedAt.UTC(),
		execution.CompletedAt,
		data,
	)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, fmt.Errorf("failed to save execution: %w", err))
	}

	return nil
}

// GetByID returns an execution by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	var data []byte

	err := r.db.QueryRowContext(ctx, `SELECT data FROM workflow_executions WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	var execution models.WorkflowExecution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, fmt.Errorf("failed to unmarshal execution: %w", err))
	}

	return &execution, nil
}

func (r *ExecutionRepository) GetAll(ctx context.Context) ([]*models.WorkflowExecution, error) {
	return r.query(ctx, `SELECT data FROM workflow_executions ORDER BY started_at, id COLLATE "C"`)
}

func (r *ExecutionRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	query := `
		SELECT data FROM workflow_executions
		WHERE workflow_id = $1
		ORDER BY started_at, id COLLATE "C"
	`

	return r.query(ctx, query, workflowID)
}

func (r *ExecutionRepository) GetByStatus(ctx context.Context, statuses ...models.ExecutionStatus) ([]*models.WorkflowExecution, error) {
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}

	query := `
		SELECT data FROM workflow_executions
		WHERE status = ANY($1)
		ORDER BY started_at, id COLLATE "C"
	`

	return r.query(ctx, query, pq.Array(values))
}

func (r *ExecutionRepository) query(ctx context.Context, query string, args ...any) ([]*models.WorkflowExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		var execution models.WorkflowExecution
		if err := json.Unmarshal(data, &execution); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
		}

		executions = append(executions, &execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}

	return executions, nil
}
