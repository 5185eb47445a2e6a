package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// GetAll returns all workflows from the database.
func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	query := `
		SELECT definition, stats
		FROM workflows
		WHERE deleted_at IS NULL
		ORDER BY created_at, id
	`

	return r.query(ctx, query)
}

// GetByCategory returns the workflows of one business area.
func (r *WorkflowRepository) GetByCategory(ctx context.Context, category models.WorkflowCategory) ([]*models.Workflow, error) {
	query := `
		SELECT definition, stats
		FROM workflows
		WHERE category = $1 AND deleted_at IS NULL
		ORDER BY created_at, id
	`

	return r.query(ctx, query, string(category))
}

func (r *WorkflowRepository) query(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
	}

	return workflows, nil
}

// GetByID returns a workflow by its ID.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT definition, stats
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL
	`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return workflow, nil
}

// Save upserts a workflow. Stats of a live row are kept; a soft-deleted row starts over.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		return persistence.NewWorkflowError("Save", workflow.ID, persistence.ErrInvalidID)
	}

	definition, err := json.Marshal(workflow)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to marshal workflow: %w", err))
	}

	stats, err := json.Marshal(workflow.Stats)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to marshal stats: %w", err))
	}

	query := `
		INSERT INTO workflows (id, name, category, status, version, owner, definition, stats, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			status = EXCLUDED.status,
			version = EXCLUDED.version,
			owner = EXCLUDED.owner,
			definition = EXCLUDED.definition,
			stats = CASE WHEN workflows.deleted_at IS NULL THEN workflows.stats ELSE EXCLUDED.stats END,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		string(workflow.Category),
		string(workflow.Status),
		workflow.Version,
		workflow.Owner,
		definition,
		stats,
		workflow.CreatedAt.UTC(),
		workflow.UpdatedAt.UTC(),
	)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to save workflow: %w", err))
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at timestamp.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE workflows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, fmt.Errorf("failed to delete workflow: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, fmt.Errorf("failed to get rows affected: %w", err))
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// RecordExecution folds a terminal execution into the stats while holding the row lock.
func (r *WorkflowRepository) RecordExecution(ctx context.Context, workflowID string, status models.ExecutionStatus, durationMs int64, at time.Time) (*models.ExecutionStats, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var raw []byte

	err = tx.QueryRowContext(ctx,
		`SELECT stats FROM workflows WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`,
		workflowID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("RecordExecution", workflowID, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("RecordExecution", workflowID, err)
	}

	var stats models.ExecutionStats

	err = json.Unmarshal(raw, &stats)
	if err != nil {
		return nil, persistence.NewWorkflowError("RecordExecution", workflowID, fmt.Errorf("failed to unmarshal stats: %w", err))
	}

	stats.Record(status, durationMs, at)

	raw, err = json.Marshal(stats)
	if err != nil {
		return nil, persistence.NewWorkflowError("RecordExecution", workflowID, fmt.Errorf("failed to marshal stats: %w", err))
	}

	_, err = tx.ExecContext(ctx, `UPDATE workflows SET stats = $2 WHERE id = $1`, workflowID, raw)
	if err != nil {
		return nil, persistence.NewWorkflowError("RecordExecution", workflowID, fmt.Errorf("failed to update stats: %w", err))
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(scanner rowScanner) (*models.Workflow, error) {
	var definition, stats []byte

	if err := scanner.Scan(&definition, &stats); err != nil {
		return nil, err
	}

	var workflow models.Workflow
	if err := json.Unmarshal(definition, &workflow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}

	workflow.Stats = models.ExecutionStats{}
	if err := json.Unmarshal(stats, &workflow.Stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
	}

	return &workflow, nil
}
