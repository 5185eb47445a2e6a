// Package webhook provides the node that posts execution state to an external endpoint.
package webhook

import (
	"github.com/dukex/storeflow/pkg/httpclient"
	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
)

// NodeFactory creates webhook nodes.
type NodeFactory struct{}

// NewNodeFactory creates a new factory instance.
func NewNodeFactory() protocol.NodeFactory {
	return &NodeFactory{}
}

// Create creates a new webhook node handler.
func (f *NodeFactory) Create(deps protocol.Dependencies) (protocol.NodeHandler, error) {
	client := deps.HTTPClient
	if client == nil {
		client = httpclient.New()
	}

	return &Node{client: client}, nil
}

func (f *NodeFactory) ID() models.NodeType {
	return models.NodeTypeWebhook
}

func (f *NodeFactory) Name() string {
	return "Webhook"
}

func (f *NodeFactory) Description() string {
	return "Sends the execution id and variables to an external URL and stores the JSON response"
}

// Schema returns the JSON schema for webhook node configuration.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Endpoint to call. Supports {{path}} templates",
				"examples":    []string{"https://hooks.example.com/orders", "https://{{shop.domain}}/api/notify"},
			},
			"method": map[string]any{
				"type":    "string",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
				"default": "POST",
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"type":        "object",
				"description": "Extra fields sent alongside execution_id and variables",
			},
		},
		"required": []string{"url"},
	}
}
