// Package trigger provides the workflow entry node.
package trigger

import (
	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
)

// NodeFactory creates trigger nodes.
type NodeFactory struct{}

// NewNodeFactory creates a new factory instance.
func NewNodeFactory() protocol.NodeFactory {
	return &NodeFactory{}
}

// Create creates a new trigger node handler.
func (f *NodeFactory) Create(_ protocol.Dependencies) (protocol.NodeHandler, error) {
	return &Node{}, nil
}

func (f *NodeFactory) ID() models.NodeType {
	return models.NodeTypeTrigger
}

func (f *NodeFactory) Name() string {
	return "Trigger"
}

func (f *NodeFactory) Description() string {
	return "Entry point of a workflow. Marks where execution starts and passes control to its connections"
}

// Schema returns the JSON schema for trigger node configuration.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description": map[string]any{
				"type":        "string",
				"description": "Free text shown in the editor",
			},
		},
	}
}
