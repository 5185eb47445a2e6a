// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
	"github.com/dukex/storeflow/pkg/workflow"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	ID          string                   `json:"id,omitempty"`
	Name        string                   `json:"name"                validate:"required,min=3"`
	Description string                   `json:"description"`
	Category    models.WorkflowCategory  `json:"category"            validate:"required,oneof=sales marketing inventory customer_service finance operations"`
	Status      models.WorkflowStatus    `json:"status,omitempty"    validate:"omitempty,oneof=draft active paused archived"`
	Owner       string                   `json:"owner"`
	Nodes       []*models.WorkflowNode   `json:"nodes"`
	Triggers    []models.WorkflowTrigger `json:"triggers"`
	Variables   map[string]any           `json:"variables"`
}

// Workflow converts the request into a workflow ready for creation.
func (r CreateWorkflowRequest) Workflow() *models.Workflow {
	nodes := r.Nodes
	if nodes == nil {
		nodes = []*models.WorkflowNode{}
	}

	triggers := r.Triggers
	if triggers == nil {
		triggers = []models.WorkflowTrigger{}
	}

	return &models.Workflow{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Status:      r.Status,
		Owner:       r.Owner,
		Nodes:       nodes,
		Triggers:    triggers,
		Variables:   r.Variables,
	}
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional to support partial updates; nodes and triggers are replaced as a whole.
type UpdateWorkflowRequest struct {
	Name        *string                  `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string                  `json:"description,omitempty"`
	Category    *models.WorkflowCategory `json:"category,omitempty"    validate:"omitempty,oneof=sales marketing inventory customer_service finance operations"`
	Status      *models.WorkflowStatus   `json:"status,omitempty"      validate:"omitempty,oneof=draft active paused archived"`
	Owner       *string                  `json:"owner,omitempty"`
	Nodes       []*models.WorkflowNode   `json:"nodes,omitempty"`
	Triggers    []models.WorkflowTrigger `json:"triggers,omitempty"`
	Variables   map[string]any           `json:"variables,omitempty"`
}

func (r UpdateWorkflowRequest) Patch() workflow.WorkflowPatch {
	return workflow.WorkflowPatch{
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Status:      r.Status,
		Owner:       r.Owner,
		Nodes:       r.Nodes,
		Triggers:    r.Triggers,
		Variables:   r.Variables,
	}
}

// ExecuteWorkflowRequest carries the trigger payload of a manual run.
type ExecuteWorkflowRequest struct {
	TriggerData map[string]any `json:"trigger_data"`
}

// ApprovalDecisionRequest represents an approver's answer to a pending approval.
type ApprovalDecisionRequest struct {
	Decision  models.ApprovalDecision `json:"decision"             validate:"required,oneof=approved rejected"`
	DecidedBy string                  `json:"decided_by,omitempty"`
}

// NodeTypeResponse describes a registered node type and its configuration schema.
type NodeTypeResponse struct {
	Type        models.NodeType `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      map[string]any  `json:"schema"`
}

func TransformNodeType(factory protocol.NodeFactory) NodeTypeResponse {
	return NodeTypeResponse{
		Type:        factory.ID(),
		Name:        factory.Name(),
		Description: factory.Description(),
		Schema:      factory.Schema(),
	}
}
