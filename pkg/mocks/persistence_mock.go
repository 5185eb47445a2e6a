package mocks

import (
	"context"
	"time"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	Workflows  *MockWorkflowRepository
	Executions *MockExecutionRepository
}

// NewMockPersistence returns a persistence mock whose repositories are mocks too.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Workflows:  &MockWorkflowRepository{},
		Executions: &MockExecutionRepository{},
	}
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.Workflows
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.Executions
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetByCategory(ctx context.Context, category models.WorkflowCategory) ([]*models.Workflow, error) {
	args := m.Called(ctx, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockWorkflowRepository) RecordExecution(ctx context.Context, workflowID string, status models.ExecutionStatus, durationMs int64, at time.Time) (*models.ExecutionStats, error) {
	args := m.Called(ctx, workflowID, status, durationMs, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionStats), args.Error(1)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) GetAll(ctx context.Context) ([]*models.WorkflowExecution, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) GetByStatus(ctx context.Context, statuses ...models.ExecutionStatus) ([]*models.WorkflowExecution, error) {
	args := m.Called(ctx, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowExecution), args.Error(1)
}
