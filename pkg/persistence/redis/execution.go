package redis

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const executionIndexKey = keyPrefix + "executions"

func executionKey(id string) string {
	return keyPrefix + "execution:" + id
}

func executionWorkflowIndexKey(workflowID string) string {
	return keyPrefix + "executions:workflow:" + workflowID
}

func executionStatusIndexKey(status models.ExecutionStatus) string {
	return keyPrefix + "executions:status:" + string(status)
}

// ExecutionRepository stores executions as JSON strings.
type ExecutionRepository struct {
	client redis.UniversalClient
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution.ID == "" {
		return persistence.NewExecutionError("Save", execution.ID, persistence.ErrInvalidID)
	}

	data, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, fmt.Errorf("failed to marshal execution: %w", err))
	}

	key := executionKey(execution.ID)
	member := redis.Z{Score: score(execution.StartedAt), Member: execution.ID}

	err = watch(ctx, r.client, func(tx *redis.Tx) error {
		previous, err := r.load(ctx, tx, execution.ID)
		if err != nil && !errors.Is(err, persistence.ErrExecutionNotFound) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, executionIndexKey, member)
			pipe.ZAdd(ctx, executionWorkflowIndexKey(execution.WorkflowID), member)

			if previous != nil && previous.Status != execution.Status {
				pipe.ZRem(ctx, executionStatusIndexKey(previous.Status), execution.ID)
			}

			pipe.ZAdd(ctx, executionStatusIndexKey(execution.Status), member)

			return nil
		})

		return err
	}, key)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	execution, err := r.load(ctx, r.client, id)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *ExecutionRepository) load(ctx context.Context, client getter, id string) (*models.WorkflowExecution, error) {
	data, err := client.Get(ctx, executionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.ErrExecutionNotFound
	}

	if err != nil {
		return nil, err
	}

	var execution models.WorkflowExecution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}

	return &execution, nil
}

func (r *ExecutionRepository) GetAll(ctx context.Context) ([]*models.WorkflowExecution, error) {
	return r.list(ctx, executionIndexKey)
}

func (r *ExecutionRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	return r.list(ctx, executionWorkflowIndexKey(workflowID))
}

func (r *ExecutionRepository) GetByStatus(ctx context.Context, statuses ...models.ExecutionStatus) ([]*models.WorkflowExecution, error) {
	indexes := make([]string, 0, len(statuses))
	for _, status := range statuses {
		indexes = append(indexes, executionStatusIndexKey(status))
	}

	return r.list(ctx, indexes...)
}

// list merges the given indexes by (score, id) and loads every member.
func (r *ExecutionRepository) list(ctx context.Context, indexes ...string) ([]*models.WorkflowExecution, error) {
	var members []redis.Z

	for _, index := range indexes {
		entries, err := r.client.ZRangeWithScores(ctx, index, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read execution index: %w", err)
		}

		members = append(members, entries...)
	}

	ids := make([]string, 0, len(members))

	slices.SortFunc(members, func(a, b redis.Z) int {
		return cmp.Or(cmp.Compare(a.Score, b.Score), cmp.Compare(a.Member.(string), b.Member.(string)))
	})

	for _, member := range members {
		ids = append(ids, member.Member.(string))
	}

	ids = slices.Compact(ids)

	executions := make([]*models.WorkflowExecution, 0, len(ids))
	if len(ids) == 0 {
		return executions, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, executionKey(id))
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}

	for i, value := range values {
		data, ok := value.(string)
		if !ok {
			continue
		}

		var execution models.WorkflowExecution
		if err := json.Unmarshal([]byte(data), &execution); err != nil {
			return nil, persistence.NewExecutionError("GetAll", ids[i], fmt.Errorf("failed to unmarshal execution: %w", err))
		}

		executions = append(executions, &execution)
	}

	return executions, nil
}
