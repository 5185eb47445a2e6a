// Package sms provides the templated text message node.
package sms

import (
	"errors"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
)

// NodeFactory creates sms nodes.
type NodeFactory struct{}

// NewNodeFactory creates a new factory instance.
func NewNodeFactory() protocol.NodeFactory {
	return &NodeFactory{}
}

// Create creates a new sms node handler.
func (f *NodeFactory) Create(deps protocol.Dependencies) (protocol.NodeHandler, error) {
	if deps.SMS == nil {
		return nil, errors.New("sms node requires an sms sender")
	}

	return &Node{sender: deps.SMS}, nil
}

func (f *NodeFactory) ID() models.NodeType {
	return models.NodeTypeSMS
}

func (f *NodeFactory) Name() string {
	return "SMS"
}

func (f *NodeFactory) Description() string {
	return "Renders a message template against execution variables and sends it as a text message"
}

// Schema returns the JSON schema for sms node configuration.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to":        map[string]any{"type": "string", "examples": []string{"{{customer.phone}}", "+4915100000000"}},
			"message":   map[string]any{"type": "string", "maxLength": 1600},
			"variables": map[string]any{"type": "object"},
		},
		"required": []string{"to", "message"},
	}
}
