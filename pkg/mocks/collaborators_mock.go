package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockCollaborator is a mock implementation of every node handler collaborator.
type MockCollaborator struct {
	mock.Mock
}

func (m *MockCollaborator) SendBulkEmail(ctx context.Context, recipients []string, subject, body string) error {
	args := m.Called(ctx, recipients, subject, body)

	return args.Error(0)
}

func (m *MockCollaborator) SendSMS(ctx context.Context, to, message string) error {
	args := m.Called(ctx, to, message)

	return args.Error(0)
}

func (m *MockCollaborator) Notify(ctx context.Context, recipients []string, title, message string, data map[string]any) error {
	args := m.Called(ctx, recipients, title, message, data)

	return args.Error(0)
}

func (m *MockCollaborator) UpdateRecord(ctx context.Context, table, recordID string, fields map[string]any) error {
	args := m.Called(ctx, table, recordID, fields)

	return args.Error(0)
}

func (m *MockCollaborator) CreateTask(ctx context.Context, title, assignee string, data map[string]any) (string, error) {
	args := m.Called(ctx, title, assignee, data)

	return args.String(0), args.Error(1)
}

func (m *MockCollaborator) GenerateReport(ctx context.Context, reportType string, params map[string]any) (string, error) {
	args := m.Called(ctx, reportType, params)

	return args.String(0), args.Error(1)
}
