// Package workflow runs workflow graphs and exposes the workflow service operations.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/storeflow/pkg/analytics"
	"github.com/dukex/storeflow/pkg/eventbus"
	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/otelhelper"
	"github.com/dukex/storeflow/pkg/persistence"
	"github.com/dukex/storeflow/pkg/protocol"
	"github.com/dukex/storeflow/pkg/scheduler"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxSteps bounds node visits in one walk.
const DefaultMaxSteps = 1000

// HandlerRegistry resolves node handlers and validates node configuration.
type HandlerRegistry interface {
	Handler(nodeType models.NodeType) (protocol.NodeHandler, error)
	ValidateNode(node *models.WorkflowNode) error
}

// Engine owns workflow execution. Each execution is driven by exactly one goroutine at a time.
type Engine struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    HandlerRegistry
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	validate    *validator.Validate
	aggregator  *analytics.Aggregator
	now         func() time.Time
	maxSteps    int

	mu   sync.Mutex
	runs map[string]*run

	// updateMu serializes read-modify-write updates of workflow definitions.
	updateMu sync.Mutex
}

// run tracks an execution currently owned by this engine.
type run struct {
	cancel    context.CancelFunc
	done      chan struct{}
	cancelled bool   // guarded by Engine.mu
	reason    string // guarded by Engine.mu
}

type Option func(*Engine)

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxSteps overrides DefaultMaxSteps. Values below 1 are ignored.
func WithMaxSteps(steps int) Option {
	return func(e *Engine) {
		if steps > 0 {
			e.maxSteps = steps
		}
	}
}

func NewEngine(logger *slog.Logger, p persistence.Persistence, registry HandlerRegistry, opts ...Option) *Engine {
	engine := &Engine{
		logger:      logger.With("module", "workflow_engine"),
		persistence: p,
		registry:    registry,
		publisher:   eventbus.NopPublisher{},
		tracer:      otelhelper.Tracer("storeflow/workflow"),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		aggregator:  analytics.NewAggregator(),
		now:         time.Now,
		maxSteps:    DefaultMaxSteps,
		runs:        make(map[string]*run),
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// HealthCheck checks the health of the persistence layer.
func (e *Engine) HealthCheck(ctx context.Context) (string, bool) {
	if err := e.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateWorkflow stores a new workflow at version 1 with empty stats.
func (e *Engine) CreateWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, &ValidationError{Op: "CreateWorkflow", Message: "workflow cannot be nil", Err: ErrInvalidWorkflow}
	}

	created := *workflow

	if created.ID == "" {
		created.ID = uuid.New().String()
	} else if _, err := e.persistence.WorkflowRepository().GetByID(ctx, created.ID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowExists, created.ID)
	} else if !persistence.IsWorkflowNotFound(err) {
		return nil, err
	}

	now := e.now().UTC()
	created.Version = 1
	created.Stats = models.ExecutionStats{}
	created.CreatedAt = now
	created.UpdatedAt = now

	if created.Status == "" {
		created.Status = models.WorkflowStatusDraft
	}

	if created.Variables == nil {
		created.Variables = map[string]any{}
	}

	if err := e.validateWorkflow("CreateWorkflow", &created); err != nil {
		return nil, err
	}

	if err := e.persistence.WorkflowRepository().Save(ctx, &created); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	e.logger.InfoContext(ctx, "workflow created", "workflow_id", created.ID, "category", created.Category, "status", created.Status)

	return &created, nil
}

// WorkflowPatch holds the fields of a partial update. Nil fields are left unchanged.
type WorkflowPatch struct {
	Name        *string
	Description *string
	Category    *models.WorkflowCategory
	Status      *models.WorkflowStatus
	Owner       *string
	Nodes       []*models.WorkflowNode
	Triggers    []models.WorkflowTrigger
	Variables   map[string]any
}

// UpdateWorkflow applies patch and bumps the version, even when patch changes nothing.
func (e *Engine) UpdateWorkflow(ctx context.Context, id string, patch WorkflowPatch) (*models.Workflow, error) {
	e.updateMu.Lock()
	defer e.updateMu.Unlock()

	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		workflow.Name = *patch.Name
	}

	if patch.Description != nil {
		workflow.Description = *patch.Description
	}

	if patch.Category != nil {
		workflow.Category = *patch.Category
	}

	if patch.Status != nil {
		workflow.Status = *patch.Status
	}

	if patch.Owner != nil {
		workflow.Owner = *patch.Owner
	}

	if patch.Nodes != nil {
		workflow.Nodes = patch.Nodes
	}

	if patch.Triggers != nil {
		workflow.Triggers = patch.Triggers
	}

	if patch.Variables != nil {
		workflow.Variables = patch.Variables
	}

	workflow.Version++
	workflow.UpdatedAt = e.now().UTC()

	if err := e.validateWorkflow("UpdateWorkflow", workflow); err != nil {
		return nil, err
	}

	if err := e.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	e.logger.InfoContext(ctx, "workflow updated", "workflow_id", id, "version", workflow.Version)

	return workflow, nil
}

// DeleteWorkflow cancels every running or waiting execution of the workflow, then removes it.
// Execution history is kept.
func (e *Engine) DeleteWorkflow(ctx context.Context, id string) error {
	if _, err := e.persistence.WorkflowRepository().GetByID(ctx, id); err != nil {
		return err
	}

	executions, err := e.persistence.ExecutionRepository().GetByWorkflow(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list executions: %w", err)
	}

	for _, execution := range executions {
		if execution.Status.IsTerminal() {
			continue
		}

		err := e.cancel(ctx, execution.ID, "workflow deleted")
		if err != nil && !errors.Is(err, ErrExecutionFinished) {
			return fmt.Errorf("failed to cancel execution %s: %w", execution.ID, err)
		}
	}

	if err := e.persistence.WorkflowRepository().Delete(ctx, id); err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "workflow deleted", "workflow_id", id)

	return nil
}

func (e *Engine) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	return e.persistence.WorkflowRepository().GetByID(ctx, id)
}

// GetWorkflows lists workflows, restricted to one category unless category is empty.
func (e *Engine) GetWorkflows(ctx context.Context, category models.WorkflowCategory) ([]*models.Workflow, error) {
	if category == "" {
		return e.persistence.WorkflowRepository().GetAll(ctx)
	}

	return e.persistence.WorkflowRepository().GetByCategory(ctx, category)
}

func (e *Engine) GetExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return e.persistence.ExecutionRepository().GetByID(ctx, id)
}

// GetExecutions lists executions of one workflow, or all of them when workflowID is empty.
func (e *Engine) GetExecutions(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	if workflowID == "" {
		return e.persistence.ExecutionRepository().GetAll(ctx)
	}

	return e.persistence.ExecutionRepository().GetByWorkflow(ctx, workflowID)
}

// GetWorkflowAnalytics recomputes the workflow's report from its stored executions.
func (e *Engine) GetWorkflowAnalytics(ctx context.Context, workflowID string, dateRange *analytics.DateRange) (*analytics.Report, error) {
	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	executions, err := e.persistence.ExecutionRepository().GetByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return e.aggregator.Compute(workflow, executions, dateRange, e.now()), nil
}

func (e *Engine) validateWorkflow(op string, workflow *models.Workflow) error {
	if err := e.validate.Struct(workflow); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			first := fieldErrors[0]

			return &ValidationError{
				Op:      op,
				Field:   first.Namespace(),
				Message: fmt.Sprintf("failed on '%s' validation", first.Tag()),
				Err:     ErrInvalidWorkflow,
			}
		}

		return &ValidationError{Op: op, Message: err.Error(), Err: ErrInvalidWorkflow}
	}

	for i, node := range workflow.Nodes {
		if node == nil {
			return &ValidationError{
				Op:      op,
				Field:   fmt.Sprintf("nodes[%d]", i),
				Message: "node is null",
				Err:     ErrInvalidWorkflow,
			}
		}
	}

	for _, node := range workflow.Nodes {
		if err := e.registry.ValidateNode(node); err != nil {
			return &ValidationError{
				Op:      op,
				Field:   "nodes." + node.ID,
				Message: err.Error(),
				Err:     fmt.Errorf("%w: %w", ErrInvalidWorkflow, err),
			}
		}
	}

	for _, trigger := range workflow.Triggers {
		if trigger.Type != models.TriggerTypeSchedule {
			continue
		}

		if err := scheduler.ValidateSchedule(trigger.Schedule); err != nil {
			return &ValidationError{
				Op:      op,
				Field:   "triggers." + trigger.ID,
				Message: err.Error(),
				Err:     fmt.Errorf("%w: %w", ErrInvalidWorkflow, err),
			}
		}
	}

	if workflow.Status == models.WorkflowStatusActive {
		if _, err := ValidateGraph(workflow); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
