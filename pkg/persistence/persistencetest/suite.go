// Package persistencetest holds the behavior every persistence backend must share.
package persistencetest

import (
	"sync"
	"testing"
	"time"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty persistence instance for one subtest.
type Factory func(t *testing.T) persistence.Persistence

// Run executes the shared repository behavior against a backend.
func Run(t *testing.T, newPersistence Factory) {
	t.Helper()

	t.Run("workflow round trip keeps typed node configs", func(t *testing.T) {
		p := newPersistence(t)
		ctx := t.Context()

		workflow := SampleWorkflow(models.CategorySales, time.Now())
		require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

		loaded, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
		require.NoError(t, err)

		assert.Equal(t, workflow.Name, loaded.Name)
		assert.Equal(t, workflow.Version, loaded.Version)
		require.Len(t, loaded.Nodes, 3)

		condition, ok := loaded.Nodes[1].Config.(*models.ConditionConfig)
		require.True(t, ok)
		assert.Equal(t, "order.total", condition.Conditions[0].Field)
		assert.Equal(t, []string{"check"}, loaded.Nodes[0].Connections)
		assert.Equal(t, "sofa-covers", loaded.Variables["shop"])
	})

	t.Run("workflow lookups", func(t *testing.T) {
		p := newPersistence(t)
		ctx := t.Context()
		base := time.Now().UTC()

		first := SampleWorkflow(models.CategoryInventory, base)
		second := SampleWorkflow(models.CategorySales, base.Add(time.Second))
		third := SampleWorkflow(models.CategoryInventory, base.Add(2*time.Second))

		for _, w := range []*models.Workflow{third, first, second} {
			require.NoError(t, p.WorkflowRepository().Save(ctx, w))
		}

		all, err := p.WorkflowRepository().GetAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{first.ID, second.ID, third.ID}, workflowIDs(all))

		inventory, err := p.WorkflowRepository().GetByCategory(ctx, models.CategoryInventory)
		require.NoError(t, err)
		assert.Equal(t, []string{first.ID, third.ID}, workflowIDs(inventory))

		_, err = p.WorkflowRepository().GetByID(ctx, uuid.New().String())
		assert.True(t, persistence.IsWorkflowNotFound(err))
	})

	t.Run("workflow save overwrites and delete removes", func(t *testing.T) {
		p := newPersistence(t)
		ctx := t.Context()

		workflow := SampleWorkflow(models.CategoryFinance, time.Now())
		require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

		workflow.Name = "Renamed"
		workflow.Version = 2
		require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

		loaded, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", loaded.Name)
		assert.Equal(t, 2, loaded.Version)

		require.NoError(t, p.WorkflowRepository().Delete(ctx, workflow.ID))

		_, err = p.WorkflowRepository().GetByID(ctx, workflow.ID)
		assert.True(t, persistence.IsWorkflowNotFound(err))

		err = p.WorkflowRepository().Delete(ctx, workflow.ID)
		assert.True(t, persistence.IsWorkflowNotFound(err))
	})

	t.Run("record execution keeps stats consistent", func(t *testing.T) {
		p := newPersistence(t)
		ctx := t.Context()
		repo := p.WorkflowRepository()

		workflow := SampleWorkflow(models.CategoryOperations, time.Now())
		require.NoError(t, repo.Save(ctx, workflow))

		at := time.Now().UTC()

		_, err := repo.RecordExecution(ctx, workflow.ID, models.ExecutionStatusCompleted, 100, at)
		require.NoError(t, err)
		_, err = repo.RecordExecution(ctx, workflow.ID, models.ExecutionStatusFailed, 300, at)
		require.NoError(t, err)

		stats, err := repo.RecordExecution(ctx, workflow.ID, models.ExecutionStatusCancelled, 200, at)
		require.NoError(t, err)

		assert.Equal(t, 3, stats.TotalExecutions)
		assert.Equal(t, 1, stats.SuccessfulExecutions)
		assert.Equal(t, 1, stats.FailedExecutions)
		assert.Equal(t, 1, stats.CancelledExecutions)
		assert.InDelta(t, 200.0, stats.AverageDurationMs, 0.0001)

		loaded, err := repo.GetByID(ctx, workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, *stats, loaded.Stats)

		_, err = repo.RecordExecution(ctx, uuid.New().String(), models.ExecutionStatusCompleted, 1, at)
		assert.True(t, persistence.IsWorkflowNotFound(err))
	})

	t.Run("save keeps recorded stats", func(t *testing.T) {
		p := newPersistence(t)
		ctx := t.Context()
		repo := p.WorkflowRepository()

		workflow := SampleWorkflow(models.CategorySales, time.Now())
		require.NoError(t, repo.Save(ctx, workflow))

		_, err := repo.RecordExecution(ctx, workflow.ID, models.ExecutionStatusCompleted, 40, time.Now())
		require.NoError(t, err)

		workflow.Description = "edited while a run finished"
		require.NoError(t, repo.Save(ctx, workflow))

		loaded, err := repo.GetByID(ctx, workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, "edited while a run finished", loaded.Description)
		assert.Equal(t, 1, loaded.Stats.TotalExecutions)
		assert.Equal(t, 1, loaded.Stats.SuccessfulExecutions)
	})

	t.Run("concurrent record execution loses no updates", func(t *testing.T) {
		p := newPersistence(t)
		ctx := t.Context()
		repo := p.WorkflowRepository()

		workflow := SampleWorkflow(models.CategoryMarketing, time.Now())
		require.NoError(t, repo.Save(ctx, workflow))

		const writers = 12

		var wg sync.WaitGroup

		for i := range writers {
			wg.Add(1)

			go func() {
				defer wg.Done()

				status := models.ExecutionStatusCompleted
				if i%3 == 0 {
					status = models.ExecutionStatusFailed
				}

				_, err := repo.RecordExecution(ctx, workflow.ID, status, 50, time.Now())
				assert.NoError(t, err)
			}()
		}

		wg.Wait()

		loaded, err := repo.GetByID(ctx, workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, writers, loaded.Stats.TotalExecutions)
		assert.Equal(t, 4, loaded.Stats.FailedExecutions)
		assert.Equal(t, 8, loaded.Stats.SuccessfulExecutions)
		assert.InDelta(t, 50.0, loaded.Stats.AverageDurationMs, 0.0001)
	})

	t.Run("execution round trip and lookups", func(t *testing.T) {
		p := newPersistence(t)
		ctx := t.Context()
		repo := p.ExecutionRepository()
		base := time.Now().UTC()

		workflow := SampleWorkflow(models.CategorySales, base)
		other := SampleWorkflow(models.CategorySales, base)

		running := SampleExecution(workflow, base)
		completed := SampleExecution(workflow, base.Add(time.Second))
		require.NoError(t, completed.Finish(models.ExecutionStatusCompleted, "", base.Add(2*time.Second)))

		waiting := SampleExecution(other, base.Add(3*time.Second))
		require.NoError(t, waiting.AwaitApproval(models.ApprovalRequest{ID: "a-1", NodeID: "approve", Approvers: []string{"ops"}, RequestedAt: base}))

		for _, e := range []*models.WorkflowExecution{waiting, completed, running} {
			require.NoError(t, repo.Save(ctx, e))
		}

		loaded, err := repo.GetByID(ctx, completed.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusCompleted, loaded.Status)
		require.NotNil(t, loaded.DurationMs)
		assert.Equal(t, int64(1000), *loaded.DurationMs)
		require.Len(t, loaded.ExecutionLog, 1)
		assert.Equal(t, models.LogStatusCompleted, loaded.ExecutionLog[0].Status)
		assert.Equal(t, "o-1", loaded.Variables["order_id"])

		byWorkflow, err := repo.GetByWorkflow(ctx, workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{running.ID, completed.ID}, executionIDs(byWorkflow))

		all, err := repo.GetAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{running.ID, completed.ID, waiting.ID}, executionIDs(all))

		active, err := repo.GetByStatus(ctx, models.ExecutionStatusRunning, models.ExecutionStatusWaitingApproval)
		require.NoError(t, err)
		assert.Equal(t, []string{running.ID, waiting.ID}, executionIDs(active))
		assert.Contains(t, active[1].PendingApprovals, "approve")

		_, err = repo.GetByID(ctx, uuid.New().String())
		assert.True(t, persistence.IsExecutionNotFound(err))
	})

	t.Run("executions survive workflow deletion", func(t *testing.T) {
		p := newPersistence(t)
		ctx := t.Context()

		workflow := SampleWorkflow(models.CategorySales, time.Now())
		require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

		execution := SampleExecution(workflow, time.Now())
		require.NoError(t, p.ExecutionRepository().Save(ctx, execution))
		require.NoError(t, p.WorkflowRepository().Delete(ctx, workflow.ID))

		history, err := p.ExecutionRepository().GetByWorkflow(ctx, workflow.ID)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("health check", func(t *testing.T) {
		require.NoError(t, newPersistence(t).HealthCheck(t.Context()))
	})
}

// SampleWorkflow builds a small active workflow: trigger -> condition -> email.
func SampleWorkflow(category models.WorkflowCategory, createdAt time.Time) *models.Workflow {
	createdAt = createdAt.UTC().Truncate(time.Millisecond)

	return &models.Workflow{
		ID:          uuid.New().String(),
		Name:        "High value order follow-up",
		Description: "Emails customers whose order is above 500",
		Category:    category,
		Status:      models.WorkflowStatusActive,
		Version:     1,
		Nodes: []*models.WorkflowNode{
			{ID: "start", Type: models.NodeTypeTrigger, Name: "Order placed", Connections: []string{"check"}, Config: &models.TriggerConfig{}},
			{
				ID: "check", Type: models.NodeTypeCondition, Name: "Above 500", Connections: []string{"mail"},
				Config: &models.ConditionConfig{
					Conditions: []models.Condition{{Field: "order.total", Operator: models.OperatorGreaterThan, Value: 500.0}},
					Operator:   models.LogicAnd,
				},
			},
			{
				ID: "mail", Type: models.NodeTypeEmail, Name: "Thank you", Position: models.Position{X: 300, Y: 40},
				Config: &models.EmailConfig{Recipients: []string{"{{customer.email}}"}, Subject: "Thanks", Template: "Hi {{customer.name}}"},
			},
		},
		Triggers:  []models.WorkflowTrigger{{ID: "manual", Type: models.TriggerTypeManual, Enabled: true}},
		Variables: map[string]any{"shop": "sofa-covers"},
		Owner:     "ops@example.com",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// SampleExecution builds a running execution of workflow with one completed log entry.
func SampleExecution(workflow *models.Workflow, startedAt time.Time) *models.WorkflowExecution {
	execution := models.NewExecution(uuid.New().String(), workflow, map[string]any{"order_id": "o-1"}, startedAt.Truncate(time.Millisecond))
	duration := int64(3)
	execution.AppendLog(models.ExecutionLogEntry{
		Timestamp:  execution.StartedAt,
		NodeID:     "start",
		NodeType:   models.NodeTypeTrigger,
		Status:     models.LogStatusCompleted,
		Message:    "trigger completed",
		DurationMs: &duration,
	})

	return execution
}

func workflowIDs(workflows []*models.Workflow) []string {
	ids := make([]string, 0, len(workflows))
	for _, w := range workflows {
		ids = append(ids, w.ID)
	}

	return ids
}

func executionIDs(executions []*models.WorkflowExecution) []string {
	ids := make([]string, 0, len(executions))
	for _, e := range executions {
		ids = append(ids, e.ID)
	}

	return ids
}
