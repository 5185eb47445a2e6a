// Package memory provides an in-process persistence implementation.
// Records live in an append-only arena indexed by id; every read decodes a fresh copy
// so callers never share state with the store.
package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/persistence"
)

// Persistence implements persistence.Persistence in memory.
type Persistence struct {
	workflows  *WorkflowRepository
	executions *ExecutionRepository
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflows:  &WorkflowRepository{arena: newArena()},
		executions: &ExecutionRepository{arena: newArena()},
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executions
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// arena stores encoded records. Deleted slots are tombstoned, never reused.
type arena struct {
	mu      sync.RWMutex
	records [][]byte
	index   map[string]int
}

func newArena() *arena {
	return &arena{index: make(map[string]int)}
}

func (a *arena) put(id string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	if slot, ok := a.index[id]; ok {
		a.records[slot] = data

		return nil
	}

	a.index[id] = len(a.records)
	a.records = append(a.records, data)

	return nil
}

func (a *arena) get(id string) ([]byte, bool) {
	slot, ok := a.index[id]
	if !ok {
		return nil, false
	}

	return a.records[slot], true
}

func (a *arena) remove(id string) bool {
	slot, ok := a.index[id]
	if !ok {
		return false
	}

	a.records[slot] = nil
	delete(a.index, id)

	return true
}

func (a *arena) live() [][]byte {
	out := make([][]byte, 0, len(a.index))
	for _, record := range a.records {
		if record != nil {
			out = append(out, record)
		}
	}

	return out
}

// WorkflowRepository stores workflows in memory.
type WorkflowRepository struct {
	arena *arena
}

func (r *WorkflowRepository) GetAll(_ context.Context) ([]*models.Workflow, error) {
	return r.filter(func(*models.Workflow) bool { return true })
}

func (r *WorkflowRepository) GetByCategory(_ context.Context, category models.WorkflowCategory) ([]*models.Workflow, error) {
	return r.filter(func(w *models.Workflow) bool { return w.Category == category })
}

func (r *WorkflowRepository) filter(keep func(*models.Workflow) bool) ([]*models.Workflow, error) {
	r.arena.mu.RLock()
	defer r.arena.mu.RUnlock()

	workflows := make([]*models.Workflow, 0)

	for _, record := range r.arena.live() {
		var workflow models.Workflow
		if err := json.Unmarshal(record, &workflow); err != nil {
			return nil, fmt.Errorf("failed to decode workflow: %w", err)
		}

		if keep(&workflow) {
			workflows = append(workflows, &workflow)
		}
	}

	slices.SortStableFunc(workflows, func(a, b *models.Workflow) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.arena.mu.RLock()
	defer r.arena.mu.RUnlock()

	return r.load(id)
}

func (r *WorkflowRepository) load(id string) (*models.Workflow, error) {
	record, ok := r.arena.get(id)
	if !ok {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	var workflow models.Workflow
	if err := json.Unmarshal(record, &workflow); err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		return persistence.NewWorkflowError("Save", workflow.ID, persistence.ErrInvalidID)
	}

	r.arena.mu.Lock()
	defer r.arena.mu.Unlock()

	stored := *workflow
	if existing, err := r.load(workflow.ID); err == nil {
		stored.Stats = existing.Stats
	}

	if err := r.arena.put(workflow.ID, &stored); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.arena.mu.Lock()
	defer r.arena.mu.Unlock()

	if !r.arena.remove(id) {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) RecordExecution(_ context.Context, workflowID string, status models.ExecutionStatus, durationMs int64, at time.Time) (*models.ExecutionStats, error) {
	r.arena.mu.Lock()
	defer r.arena.mu.Unlock()

	workflow, err := r.load(workflowID)
	if err != nil {
		return nil, err
	}

	workflow.Stats.Record(status, durationMs, at)

	if err := r.arena.put(workflowID, workflow); err != nil {
		return nil, persistence.NewWorkflowError("RecordExecution", workflowID, err)
	}

	return &workflow.Stats, nil
}

// ExecutionRepository stores executions in memory.
type ExecutionRepository struct {
	arena *arena
}

func (r *ExecutionRepository) Save(_ context.Context, execution *models.WorkflowExecution) error {
	if execution.ID == "" {
		return persistence.NewExecutionError("Save", execution.ID, persistence.ErrInvalidID)
	}

	r.arena.mu.Lock()
	defer r.arena.mu.Unlock()

	if err := r.arena.put(execution.ID, execution); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	r.arena.mu.RLock()
	defer r.arena.mu.RUnlock()

	record, ok := r.arena.get(id)
	if !ok {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	var execution models.WorkflowExecution
	if err := json.Unmarshal(record, &execution); err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return &execution, nil
}

func (r *ExecutionRepository) GetAll(_ context.Context) ([]*models.WorkflowExecution, error) {
	return r.filter(func(*models.WorkflowExecution) bool { return true })
}

func (r *ExecutionRepository) GetByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	return r.filter(func(e *models.WorkflowExecution) bool { return e.WorkflowID == workflowID })
}

func (r *ExecutionRepository) GetByStatus(_ context.Context, statuses ...models.ExecutionStatus) ([]*models.WorkflowExecution, error) {
	return r.filter(func(e *models.WorkflowExecution) bool { return slices.Contains(statuses, e.Status) })
}

func (r *ExecutionRepository) filter(keep func(*models.WorkflowExecution) bool) ([]*models.WorkflowExecution, error) {
	r.arena.mu.RLock()
	defer r.arena.mu.RUnlock()

	executions := make([]*models.WorkflowExecution, 0)

	for _, record := range r.arena.live() {
		var execution models.WorkflowExecution
		if err := json.Unmarshal(record, &execution); err != nil {
			return nil, fmt.Errorf("failed to decode execution: %w", err)
		}

		if keep(&execution) {
			executions = append(executions, &execution)
		}
	}

	slices.SortStableFunc(executions, func(a, b *models.WorkflowExecution) int {
		return cmp.Or(a.StartedAt.Compare(b.StartedAt), cmp.Compare(a.ID, b.ID))
	})

	return executions, nil
}
