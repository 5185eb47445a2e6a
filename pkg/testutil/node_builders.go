// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test WorkflowNode with default values that can be overridden.
func CreateTestNode(id string, config models.NodeConfig, overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:       id,
		Type:     config.NodeType(),
		Name:     "Test " + string(config.NodeType()),
		Position: models.Position{X: 100, Y: 200},
		Config:   config,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithConnections sets the node's outgoing edges.
func WithConnections(ids ...string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Connections = ids
	}
}

// WithWrites declares the variables the node may write.
func WithWrites(keys ...string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Writes = keys
	}
}

// WithRetry sets the node retry policy.
func WithRetry(maxAttempts int, strategy string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Retry = &models.RetryPolicy{
			MaxAttempts:       maxAttempts,
			Strategy:          strategy,
			InitialIntervalMs: 1,
			MaxIntervalMs:     5,
		}
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(seconds int) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.TimeoutSeconds = seconds
	}
}

// CreateTestWorkflow creates an active workflow around the given nodes.
func CreateTestWorkflow(nodes []*models.WorkflowNode, overrides ...func(*models.Workflow)) *models.Workflow {
	now := time.Now().UTC()
	workflow := &models.Workflow{
		ID:        uuid.New().String(),
		Name:      "Test Workflow",
		Category:  models.CategorySales,
		Status:    models.WorkflowStatusActive,
		Version:   1,
		Nodes:     nodes,
		Triggers:  []models.WorkflowTrigger{{ID: "manual", Type: models.TriggerTypeManual, Enabled: true}},
		Variables: map[string]any{},
		Owner:     "ops@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithStatus sets the workflow status.
func WithStatus(status models.WorkflowStatus) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Status = status
	}
}

// WithVariables sets the workflow default variables.
func WithVariables(variables map[string]any) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Variables = variables
	}
}

// CreateTestExecution creates a running execution holding the given variables.
func CreateTestExecution(variables map[string]any) *models.WorkflowExecution {
	workflow := &models.Workflow{ID: "wf-test", Version: 1, Variables: variables}

	return models.NewExecution("exec-test", workflow, nil, time.Now())
}
