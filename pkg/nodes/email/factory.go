// Package email provides the templated bulk email node.
package email

import (
	"errors"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
)

// NodeFactory creates email nodes.
type NodeFactory struct{}

// NewNodeFactory creates a new factory instance.
func NewNodeFactory() protocol.NodeFactory {
	return &NodeFactory{}
}

// Create creates a new email node handler.
func (f *NodeFactory) Create(deps protocol.Dependencies) (protocol.NodeHandler, error) {
	if deps.Email == nil {
		return nil, errors.New("email node requires an email sender")
	}

	return &Node{sender: deps.Email}, nil
}

func (f *NodeFactory) ID() models.NodeType {
	return models.NodeTypeEmail
}

func (f *NodeFactory) Name() string {
	return "Email"
}

func (f *NodeFactory) Description() string {
	return "Renders a subject and body template against execution variables and sends it to every recipient"
}

// Schema returns the JSON schema for email node configuration.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"recipients": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    map[string]any{"type": "string"},
				"examples": []any{[]string{"{{customer.email}}"}},
			},
			"subject":   map[string]any{"type": "string"},
			"template":  map[string]any{"type": "string", "description": "Body with {{path}} placeholders"},
			"variables": map[string]any{"type": "object", "description": "Values that override execution variables while rendering"},
		},
		"required": []string{"recipients", "subject", "template"},
		"examples": []map[string]any{
			{
				"recipients": []string{"{{customer.email}}"},
				"subject":    "Your {{order.product}} cover has shipped",
				"template":   "Hi {{customer.first_name}}, tracking: {{shipment.tracking}}",
			},
		},
	}
}
