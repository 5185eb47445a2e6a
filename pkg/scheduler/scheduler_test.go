package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) GetWorkflows(ctx context.Context, category models.WorkflowCategory) ([]*models.Workflow, error) {
	args := m.Called(ctx, category)

	workflows, _ := args.Get(0).([]*models.Workflow)

	return workflows, args.Error(1)
}

func (m *mockRunner) ExecuteWorkflow(ctx context.Context, workflowID string, triggerData map[string]any) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, workflowID, triggerData)

	execution, _ := args.Get(0).(*models.WorkflowExecution)

	return execution, args.Error(1)
}

func (m *mockRunner) ExpireApprovals(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)

	return args.Int(0), args.Error(1)
}

func scheduledWorkflow(id string, status models.WorkflowStatus, triggers ...models.WorkflowTrigger) *models.Workflow {
	return &models.Workflow{ID: id, Name: "Nightly " + id, Status: status, Triggers: triggers}
}

func nightly(id, schedule string) models.WorkflowTrigger {
	return models.WorkflowTrigger{ID: id, Type: models.TriggerTypeSchedule, Schedule: schedule, Enabled: true}
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{expr: "*/5 * * * *"},
		{expr: "0 9 * * 1-5"},
		{expr: "@daily"},
		{expr: "invalid cron", wantErr: true},
		{expr: "", wantErr: true},
		{expr: "0 0 0 * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateSchedule(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScheduler_SyncRegistersEnabledSchedules(t *testing.T) {
	runner := &mockRunner{}
	runner.On("GetWorkflows", mock.Anything, models.WorkflowCategory("")).Return([]*models.Workflow{
		scheduledWorkflow("restock", models.WorkflowStatusActive,
			nightly("nightly", "0 2 * * *"),
			models.WorkflowTrigger{ID: "manual", Type: models.TriggerTypeManual, Enabled: true},
			models.WorkflowTrigger{ID: "off", Type: models.TriggerTypeSchedule, Schedule: "0 3 * * *"},
			nightly("broken", "every day"),
		),
		scheduledWorkflow("paused", models.WorkflowStatusPaused, nightly("nightly", "0 2 * * *")),
	}, nil).Once()

	s := New(slog.Default(), runner)

	require.NoError(t, s.Sync(t.Context()))
	assert.Equal(t, 1, s.Len())
	assert.Len(t, s.cron.Entries(), 1)

	runner.AssertExpectations(t)
}

func TestScheduler_SyncRemovesStaleSchedules(t *testing.T) {
	runner := &mockRunner{}
	runner.On("GetWorkflows", mock.Anything, models.WorkflowCategory("")).Return([]*models.Workflow{
		scheduledWorkflow("restock", models.WorkflowStatusActive, nightly("nightly", "0 2 * * *")),
		scheduledWorkflow("report", models.WorkflowStatusActive, nightly("weekly", "0 8 * * 1")),
	}, nil).Once()
	runner.On("GetWorkflows", mock.Anything, models.WorkflowCategory("")).Return([]*models.Workflow{
		scheduledWorkflow("restock", models.WorkflowStatusActive, nightly("nightly", "30 2 * * *")),
	}, nil).Once()

	s := New(slog.Default(), runner)

	require.NoError(t, s.Sync(t.Context()))
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.Sync(t.Context()))
	assert.Equal(t, 1, s.Len())
	assert.Contains(t, s.entries, "restock/nightly@30 2 * * *")
	assert.Len(t, s.cron.Entries(), 1)
}

func TestScheduler_SyncPropagatesListError(t *testing.T) {
	runner := &mockRunner{}
	runner.On("GetWorkflows", mock.Anything, models.WorkflowCategory("")).Return(nil, errors.New("db down"))

	err := New(slog.Default(), runner).Sync(t.Context())
	require.ErrorContains(t, err, "db down")
}

func TestScheduler_FireExecutesWorkflow(t *testing.T) {
	now := time.Date(2026, 3, 30, 2, 0, 0, 0, time.UTC)

	runner := &mockRunner{}
	runner.On("ExecuteWorkflow", mock.Anything, "restock", map[string]any{
		"trigger_id": "nightly",
		"timestamp":  "2026-03-30T02:00:00Z",
		"warehouse":  "sp-01",
	}).Return(&models.WorkflowExecution{ID: "exec-1", Status: models.ExecutionStatusCompleted}, nil).Once()

	s := New(slog.Default(), runner, WithClock(func() time.Time { return now }))

	trigger := nightly("nightly", "0 2 * * *")
	trigger.Data = map[string]any{"warehouse": "sp-01"}

	s.fire(t.Context(), "restock", trigger)

	runner.AssertExpectations(t)
}

func TestScheduler_FireLogsStartFailure(t *testing.T) {
	runner := &mockRunner{}
	runner.On("ExecuteWorkflow", mock.Anything, "restock", mock.Anything).Return(nil, errors.New("workflow is not active")).Once()

	s := New(slog.Default(), runner)
	s.fire(t.Context(), "restock", nightly("nightly", "0 2 * * *"))

	runner.AssertExpectations(t)
}

func TestScheduler_ExpireApprovalsUsesClock(t *testing.T) {
	now := time.Date(2026, 3, 30, 12, 0, 0, 0, time.UTC)

	runner := &mockRunner{}
	runner.On("ExpireApprovals", mock.Anything, now).Return(2, nil).Once()

	s := New(slog.Default(), runner, WithClock(func() time.Time { return now }))
	s.expireApprovals()

	runner.AssertExpectations(t)
}

func TestScheduler_StartAndStop(t *testing.T) {
	runner := &mockRunner{}
	runner.On("GetWorkflows", mock.Anything, models.WorkflowCategory("")).Return([]*models.Workflow{
		scheduledWorkflow("restock", models.WorkflowStatusActive, nightly("nightly", "0 2 * * *")),
	}, nil)

	s := New(slog.Default(), runner)

	require.NoError(t, s.Start(t.Context()))
	assert.Equal(t, 1, s.Len())
	assert.Len(t, s.cron.Entries(), 3)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.Stop(ctx))
}

func TestScheduler_StartRejectsBadHousekeepingSpec(t *testing.T) {
	runner := &mockRunner{}
	runner.On("GetWorkflows", mock.Anything, models.WorkflowCategory("")).Return([]*models.Workflow{}, nil)

	err := New(slog.Default(), runner, WithExpirySpec("whenever")).Start(t.Context())
	require.ErrorContains(t, err, "approval expiry job")
}
