// Package redis provides a Redis persistence implementation.
//
// Workflows live in hashes holding the JSON definition and the stats separately;
// executions are JSON strings. Sorted sets scored by creation or start time, in
// milliseconds, index both so lists come back in order.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/storeflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "storeflow:"

	// maxTxRetries bounds optimistic transaction retries when a watched key changes.
	maxTxRetries = 64
)

// Persistence implements persistence.Persistence on Redis.
type Persistence struct {
	client        redis.UniversalClient
	logger        *slog.Logger
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
}

// NewPersistence connects to the server named by a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", options.Addr, "db", options.DB)

	return &Persistence{
		client:        client,
		logger:        logger,
		workflowRepo:  &WorkflowRepository{client: client},
		executionRepo: &ExecutionRepository{client: client},
	}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// watch runs fn under WATCH on keys, retrying while another client wins the race.
func watch(ctx context.Context, client redis.UniversalClient, fn func(*redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}

	return fmt.Errorf("transaction on %v kept conflicting: %w", keys, redis.TxFailedErr)
}
