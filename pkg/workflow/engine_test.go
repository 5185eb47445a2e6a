package workflow

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/storeflow/pkg/eventbus"
	"github.com/dukex/storeflow/pkg/events"
	"github.com/dukex/storeflow/pkg/messaging"
	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/persistence/memory"
	"github.com/dukex/storeflow/pkg/protocol"
	"github.com/dukex/storeflow/pkg/registry"
	"github.com/dukex/storeflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(ctx context.Context, execution *models.WorkflowExecution, node *models.WorkflowNode) (bool, error)

func (f handlerFunc) Execute(ctx context.Context, execution *models.WorkflowExecution, node *models.WorkflowNode) (bool, error) {
	return f(ctx, execution, node)
}

// stubRegistry serves the built-in handlers unless a test overrides a node type.
type stubRegistry struct {
	*registry.Registry
	overrides map[models.NodeType]protocol.NodeHandler
}

func (s *stubRegistry) Handler(nodeType models.NodeType) (protocol.NodeHandler, error) {
	if handler, ok := s.overrides[nodeType]; ok {
		return handler, nil
	}

	return s.Registry.Handler(nodeType)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]events.EventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.GetType())
	}

	return types
}

type testEnv struct {
	engine      *Engine
	persistence *memory.Persistence
	registry    *stubRegistry
	publisher   *recordingPublisher
}

type envOption func(*protocol.Dependencies)

func withSleep(sleep func(ctx context.Context, d time.Duration) error) envOption {
	return func(deps *protocol.Dependencies) { deps.Sleep = sleep }
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	return newTestEnvWithDeps(t, nil, opts...)
}

func newTestEnvWithDeps(t *testing.T, depOpts []envOption, opts ...Option) *testEnv {
	t.Helper()

	logger := slog.Default()

	reg := registry.NewRegistry(logger)
	require.NoError(t, reg.RegisterDefaultNodes())

	collaborator := messaging.NewLogCollaborator(logger)
	deps := protocol.Dependencies{
		Email:    collaborator,
		SMS:      collaborator,
		Notifier: collaborator,
		Records:  collaborator,
		Tasks:    collaborator,
		Reports:  collaborator,
		Sleep:    func(context.Context, time.Duration) error { return nil },
	}

	for _, opt := range depOpts {
		opt(&deps)
	}

	require.NoError(t, reg.Build(deps))

	stub := &stubRegistry{Registry: reg, overrides: map[models.NodeType]protocol.NodeHandler{}}
	publisher := &recordingPublisher{}
	p := memory.NewPersistence()

	opts = append([]Option{WithPublisher(publisher)}, opts...)

	return &testEnv{
		engine:      NewEngine(logger, p, stub, opts...),
		persistence: p,
		registry:    stub,
		publisher:   publisher,
	}
}

// store saves the workflow as is, bypassing validation.
func (env *testEnv) store(t *testing.T, workflow *models.Workflow) *models.Workflow {
	t.Helper()

	require.NoError(t, env.persistence.WorkflowRepository().Save(t.Context(), workflow))

	return workflow
}

func triggerNode(connections ...string) *models.WorkflowNode {
	return testutil.CreateTestNode("trigger", &models.TriggerConfig{}, testutil.WithConnections(connections...))
}

func notifyNode(id string, connections ...string) *models.WorkflowNode {
	return testutil.CreateTestNode(id, &models.ActionConfig{
		ActionType: models.ActionSendNotification,
		Recipients: []string{"ops@example.com"},
		Title:      "Order {{order_id}}",
		Message:    "Order {{order_id}} needs attention",
	}, testutil.WithConnections(connections...))
}

func newDraft() *models.Workflow {
	return &models.Workflow{
		Name:     "Abandoned cart follow-up",
		Category: models.CategoryMarketing,
		Nodes:    []*models.WorkflowNode{triggerNode("notify"), notifyNode("notify")},
		Triggers: []models.WorkflowTrigger{{ID: "manual", Type: models.TriggerTypeManual, Enabled: true}},
	}
}

func TestEngine_CreateWorkflow(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.engine.CreateWorkflow(t.Context(), newDraft())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
	assert.Equal(t, models.ExecutionStats{}, created.Stats)
	assert.False(t, created.CreatedAt.IsZero())
	assert.NotNil(t, created.Variables)

	stored, err := env.engine.GetWorkflow(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, stored.Name)
}

func TestEngine_CreateWorkflowKeepsGivenID(t *testing.T) {
	env := newTestEnv(t)

	draft := newDraft()
	draft.ID = "cart-follow-up"

	created, err := env.engine.CreateWorkflow(t.Context(), draft)
	require.NoError(t, err)
	assert.Equal(t, "cart-follow-up", created.ID)

	_, err = env.engine.CreateWorkflow(t.Context(), draft)
	require.ErrorIs(t, err, ErrWorkflowExists)
	assert.True(t, IsInvalidState(err))
}

func TestEngine_CreateWorkflowValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Workflow)
		is     error
	}{
		{
			name:   "short name",
			mutate: func(w *models.Workflow) { w.Name = "ab" },
			is:     ErrInvalidWorkflow,
		},
		{
			name:   "unknown category",
			mutate: func(w *models.Workflow) { w.Category = "wholesale" },
			is:     ErrInvalidWorkflow,
		},
		{
			name: "invalid node config",
			mutate: func(w *models.Workflow) {
				w.Nodes = append(w.Nodes, testutil.CreateTestNode("hook", &models.WebhookConfig{}))
			},
			is: registry.ErrInvalidConfig,
		},
		{
			name:   "null node",
			mutate: func(w *models.Workflow) { w.Nodes = append(w.Nodes, nil) },
			is:     ErrInvalidWorkflow,
		},
		{
			name: "invalid schedule",
			mutate: func(w *models.Workflow) {
				w.Triggers = append(w.Triggers, models.WorkflowTrigger{
					ID: "nightly", Type: models.TriggerTypeSchedule, Schedule: "every night", Enabled: true,
				})
			},
			is: ErrInvalidWorkflow,
		},
		{
			name: "active without trigger node",
			mutate: func(w *models.Workflow) {
				w.Status = models.WorkflowStatusActive
				w.Nodes = []*models.WorkflowNode{notifyNode("notify")}
			},
			is: ErrInvalidGraph,
		},
		{
			name: "active with dangling connection",
			mutate: func(w *models.Workflow) {
				w.Status = models.WorkflowStatusActive
				w.Nodes = []*models.WorkflowNode{triggerNode("missing")}
			},
			is: ErrInvalidGraph,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			draft := newDraft()
			tt.mutate(draft)

			_, err := env.engine.CreateWorkflow(t.Context(), draft)
			require.ErrorIs(t, err, tt.is)
			assert.True(t, IsValidationError(err))

			workflows, err := env.engine.GetWorkflows(t.Context(), "")
			require.NoError(t, err)
			assert.Empty(t, workflows)
		})
	}
}

func TestEngine_CreateWorkflowNil(t *testing.T) {
	_, err := newTestEnv(t).engine.CreateWorkflow(t.Context(), nil)
	require.ErrorIs(t, err, ErrInvalidWorkflow)
}

func TestEngine_UpdateWorkflowBumpsVersion(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.engine.CreateWorkflow(t.Context(), newDraft())
	require.NoError(t, err)

	updated, err := env.engine.UpdateWorkflow(t.Context(), created.ID, WorkflowPatch{})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	name := "Abandoned cart reminder"
	status := models.WorkflowStatusActive

	updated, err = env.engine.UpdateWorkflow(t.Context(), created.ID, WorkflowPatch{Name: &name, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Version)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, models.WorkflowStatusActive, updated.Status)
	assert.Equal(t, created.Category, updated.Category)
}

func TestEngine_UpdateWorkflowRejectsInvalidPatch(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.engine.CreateWorkflow(t.Context(), newDraft())
	require.NoError(t, err)

	status := models.WorkflowStatusActive

	_, err = env.engine.UpdateWorkflow(t.Context(), created.ID, WorkflowPatch{
		Status: &status,
		Nodes:  []*models.WorkflowNode{notifyNode("notify")},
	})
	require.ErrorIs(t, err, ErrInvalidGraph)

	stored, err := env.engine.GetWorkflow(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, models.WorkflowStatusDraft, stored.Status)
}

func TestEngine_UpdateWorkflowKeepsStats(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.store(t, testutil.CreateTestWorkflow([]*models.WorkflowNode{triggerNode()}))

	_, err := env.engine.ExecuteWorkflow(t.Context(), workflow.ID, nil)
	require.NoError(t, err)

	owner := "marketing@example.com"

	updated, err := env.engine.UpdateWorkflow(t.Context(), workflow.ID, WorkflowPatch{Owner: &owner})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Stats.TotalExecutions)
}

func TestEngine_UpdateWorkflowRejectsNullNode(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.engine.CreateWorkflow(t.Context(), newDraft())
	require.NoError(t, err)

	_, err = env.engine.UpdateWorkflow(t.Context(), created.ID, WorkflowPatch{
		Nodes: []*models.WorkflowNode{triggerNode(), nil},
	})
	require.ErrorIs(t, err, ErrInvalidWorkflow)
	assert.True(t, IsValidationError(err))
}

func TestEngine_UpdateWorkflowConcurrentPatches(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.engine.CreateWorkflow(t.Context(), newDraft())
	require.NoError(t, err)

	const updates = 10

	var wg sync.WaitGroup

	for range updates {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := env.engine.UpdateWorkflow(context.Background(), created.ID, WorkflowPatch{})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	stored, err := env.engine.GetWorkflow(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1+updates, stored.Version)
}

func TestEngine_UpdateWorkflowNotFound(t *testing.T) {
	_, err := newTestEnv(t).engine.UpdateWorkflow(t.Context(), "missing", WorkflowPatch{})
	require.ErrorIs(t, err, ErrWorkflowNotFound)
	assert.True(t, IsNotFound(err))
}

func TestEngine_GetWorkflowsByCategory(t *testing.T) {
	env := newTestEnv(t)

	env.store(t, testutil.CreateTestWorkflow(nil))
	env.store(t, testutil.CreateTestWorkflow(nil, func(w *models.Workflow) { w.Category = models.CategoryFinance }))

	all, err := env.engine.GetWorkflows(t.Context(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	finance, err := env.engine.GetWorkflows(t.Context(), models.CategoryFinance)
	require.NoError(t, err)
	require.Len(t, finance, 1)
	assert.Equal(t, models.CategoryFinance, finance[0].Category)

	inventory, err := env.engine.GetWorkflows(t.Context(), models.CategoryInventory)
	require.NoError(t, err)
	assert.Empty(t, inventory)
}

func TestEngine_DeleteWorkflowKeepsHistory(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.store(t, testutil.CreateTestWorkflow([]*models.WorkflowNode{triggerNode()}))

	execution, err := env.engine.ExecuteWorkflow(t.Context(), workflow.ID, nil)
	require.NoError(t, err)

	require.NoError(t, env.engine.DeleteWorkflow(t.Context(), workflow.ID))

	_, err = env.engine.GetWorkflow(t.Context(), workflow.ID)
	require.ErrorIs(t, err, ErrWorkflowNotFound)

	stored, err := env.engine.GetExecution(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)

	require.ErrorIs(t, env.engine.DeleteWorkflow(t.Context(), workflow.ID), ErrWorkflowNotFound)
}

func TestEngine_GetExecutions(t *testing.T) {
	env := newTestEnv(t)
	first := env.store(t, testutil.CreateTestWorkflow([]*models.WorkflowNode{triggerNode()}))
	second := env.store(t, testutil.CreateTestWorkflow([]*models.WorkflowNode{triggerNode()}))

	for _, id := range []string{first.ID, first.ID, second.ID} {
		_, err := env.engine.ExecuteWorkflow(t.Context(), id, nil)
		require.NoError(t, err)
	}

	all, err := env.engine.GetExecutions(t.Context(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ofFirst, err := env.engine.GetExecutions(t.Context(), first.ID)
	require.NoError(t, err)
	assert.Len(t, ofFirst, 2)

	_, err = env.engine.GetExecution(t.Context(), "missing")
	require.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestEngine_GetWorkflowAnalytics(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.store(t, testutil.CreateTestWorkflow([]*models.WorkflowNode{triggerNode()}))

	for range 3 {
		_, err := env.engine.ExecuteWorkflow(t.Context(), workflow.ID, nil)
		require.NoError(t, err)
	}

	report, err := env.engine.GetWorkflowAnalytics(t.Context(), workflow.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, workflow.ID, report.WorkflowID)
	assert.Equal(t, 3, report.TotalExecutions)
	assert.Equal(t, 3, report.SuccessfulExecutions)
	assert.InDelta(t, 100.0, report.SuccessRate, 0.001)
	require.Len(t, report.NodePerformance, 1)
	assert.Equal(t, 3, report.NodePerformance[0].Executions)

	_, err = env.engine.GetWorkflowAnalytics(t.Context(), "missing", nil)
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestEngine_HealthCheck(t *testing.T) {
	message, ok := newTestEnv(t).engine.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)
}
