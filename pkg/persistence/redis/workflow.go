package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	fieldDefinition = "definition"
	fieldStats      = "stats"
	fieldCategory   = "category"

	workflowIndexKey = keyPrefix + "workflows"
)

func workflowKey(id string) string {
	return keyPrefix + "workflow:" + id
}

func categoryIndexKey(category models.WorkflowCategory) string {
	return keyPrefix + "workflows:category:" + string(category)
}

// WorkflowRepository stores workflows in Redis hashes.
type WorkflowRepository struct {
	client redis.UniversalClient
}

func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	return r.list(ctx, workflowIndexKey)
}

func (r *WorkflowRepository) GetByCategory(ctx context.Context, category models.WorkflowCategory) ([]*models.Workflow, error) {
	return r.list(ctx, categoryIndexKey(category))
}

func (r *WorkflowRepository) list(ctx context.Context, index string) ([]*models.Workflow, error) {
	ids, err := r.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow index: %w", err)
	}

	pipe := r.client.Pipeline()
	commands := make([]*redis.SliceCmd, 0, len(ids))

	for _, id := range ids {
		commands = append(commands, pipe.HMGet(ctx, workflowKey(id), fieldDefinition, fieldStats))
	}

	if len(commands) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to load workflows: %w", err)
		}
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for i, cmd := range commands {
		workflow, found, err := decodeWorkflow(cmd.Val())
		if err != nil {
			return nil, persistence.NewWorkflowError("GetAll", ids[i], err)
		}

		if found {
			workflows = append(workflows, workflow)
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	values, err := r.client.HMGet(ctx, workflowKey(id), fieldDefinition, fieldStats).Result()
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	workflow, found, err := decodeWorkflow(values)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

// Save writes the definition and indexes. Stats are only seeded when the hash is new.
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

	key := workflowKey(workflow.ID)

	err = watch(ctx, r.client, func(tx *redis.Tx) error {
		previous, err := tx.HGet(ctx, key, fieldCategory).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldDefinition, definition, fieldCategory, string(workflow.Category))
			pipe.HSetNX(ctx, key, fieldStats, stats)
			pipe.ZAdd(ctx, workflowIndexKey, redis.Z{Score: score(workflow.CreatedAt), Member: workflow.ID})

			if previous != "" && previous != string(workflow.Category) {
				pipe.ZRem(ctx, categoryIndexKey(models.WorkflowCategory(previous)), workflow.ID)
			}

			pipe.ZAdd(ctx, categoryIndexKey(workflow.Category), redis.Z{Score: score(workflow.CreatedAt), Member: workflow.ID})

			return nil
		})

		return err
	}, key)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	key := workflowKey(id)

	err := watch(ctx, r.client, func(tx *redis.Tx) error {
		category, err := tx.HGet(ctx, key, fieldCategory).Result()
		if errors.Is(err, redis.Nil) {
			return persistence.ErrWorkflowNotFound
		}

		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, workflowIndexKey, id)
			pipe.ZRem(ctx, categoryIndexKey(models.WorkflowCategory(category)), id)

			return nil
		})

		return err
	}, key)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}

// RecordExecution updates the stats field under WATCH so concurrent writers retry instead of overwriting.
func (r *WorkflowRepository) RecordExecution(ctx context.Context, workflowID string, status models.ExecutionStatus, durationMs int64, at time.Time) (*models.ExecutionStats, error) {
	key := workflowKey(workflowID)

	var stats models.ExecutionStats

	err := watch(ctx, r.client, func(tx *redis.Tx) error {
		values, err := tx.HMGet(ctx, key, fieldDefinition, fieldStats).Result()
		if err != nil {
			return err
		}

		if values[0] == nil {
			return persistence.ErrWorkflowNotFound
		}

		stats = models.ExecutionStats{}

		if raw, ok := values[1].(string); ok {
			if err := json.Unmarshal([]byte(raw), &stats); err != nil {
				return fmt.Errorf("failed to unmarshal stats: %w", err)
			}
		}

		stats.Record(status, durationMs, at)

		encoded, err := json.Marshal(stats)
		if err != nil {
			return fmt.Errorf("failed to marshal stats: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldStats, encoded)

			return nil
		})

		return err
	}, key)
	if err != nil {
		return nil, persistence.NewWorkflowError("RecordExecution", workflowID, err)
	}

	return &stats, nil
}

// decodeWorkflow turns an HMGET reply of definition and stats into a workflow.
func decodeWorkflow(values []any) (*models.Workflow, bool, error) {
	definition, ok := values[0].(string)
	if !ok {
		return nil, false, nil
	}

	var workflow models.Workflow
	if err := json.Unmarshal([]byte(definition), &workflow); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}

	workflow.Stats = models.ExecutionStats{}

	if raw, ok := values[1].(string); ok {
		if err := json.Unmarshal([]byte(raw), &workflow.Stats); err != nil {
			return nil, false, fmt.Errorf("failed to unmarshal stats: %w", err)
		}
	}

	return &workflow, true, nil
}
