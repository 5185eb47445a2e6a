// Package approval provides the human approval gate that suspends an execution until a decision arrives.
package approval

import (
	"errors"
	"time"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
)

// NodeFactory creates approval nodes.
type NodeFactory struct{}

// NewNodeFactory creates a new factory instance.
func NewNodeFactory() protocol.NodeFactory {
	return &NodeFactory{}
}

// Create creates a new approval node handler.
func (f *NodeFactory) Create(deps protocol.Dependencies) (protocol.NodeHandler, error) {
	if deps.Notifier == nil {
		return nil, errors.New("approval node requires a notifier")
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Node{notifier: deps.Notifier, now: now}, nil
}

func (f *NodeFactory) ID() models.NodeType {
	return models.NodeTypeApproval
}

func (f *NodeFactory) Name() string {
	return "Approval"
}

func (f *NodeFactory) Description() string {
	return "Asks approvers for a decision and suspends the execution until it is approved, rejected or expires"
}

// Schema returns the JSON schema for approval node configuration.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"approvers": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    map[string]any{"type": "string"},
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Shown to approvers. Supports {{path}} templates",
			},
			"timeout_hours": map[string]any{
				"type":        "number",
				"minimum":     0,
				"maximum":     maxTimeoutHours,
				"description": "Hours until the request expires and the execution is cancelled. 0 never expires",
			},
		},
		"required": []string{"approvers"},
		"examples": []map[string]any{
			{"approvers": []string{"finance@example.com"}, "message": "Refund {{order.total}} for {{order.id}}?", "timeout_hours": 24},
		},
	}
}
