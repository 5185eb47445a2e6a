// Package action provides the back-office action node: record updates, notifications, tasks, API calls and reports.
package action

import (
	"errors"

	"github.com/dukex/storeflow/pkg/httpclient"
	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
)

// NodeFactory creates action nodes.
type NodeFactory struct{}

// NewNodeFactory creates a new factory instance.
func NewNodeFactory() protocol.NodeFactory {
	return &NodeFactory{}
}

// Create creates a new action node handler.
func (f *NodeFactory) Create(deps protocol.Dependencies) (protocol.NodeHandler, error) {
	if deps.Records == nil || deps.Notifier == nil || deps.Tasks == nil || deps.Reports == nil {
		return nil, errors.New("action node requires record, notifier, task and report collaborators")
	}

	client := deps.HTTPClient
	if client == nil {
		client = httpclient.New()
	}

	return &Node{
		client:   client,
		records:  deps.Records,
		notifier: deps.Notifier,
		tasks:    deps.Tasks,
		reports:  deps.Reports,
		logger:   deps.Logger,
	}, nil
}

func (f *NodeFactory) ID() models.NodeType {
	return models.NodeTypeAction
}

func (f *NodeFactory) Name() string {
	return "Action"
}

func (f *NodeFactory) Description() string {
	return "Performs a back-office action: update a record, notify staff, open a task, call an API or generate a report"
}

// Schema returns the JSON schema for action node configuration.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action_type": map[string]any{
				"type": "string",
				"enum": []string{
					models.ActionUpdateDatabase,
					models.ActionSendNotification,
					models.ActionCreateTask,
					models.ActionAPICall,
					models.ActionGenerateReport,
				},
			},
			"table":       map[string]any{"type": "string", "description": "Table for update_database"},
			"record_id":   map[string]any{"type": "string", "description": "Record id for update_database. Supports {{path}} templates"},
			"fields":      map[string]any{"type": "object", "description": "Field values for update_database"},
			"recipients":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"message":     map[string]any{"type": "string", "description": "Notification text. Supports {{path}} templates"},
			"title":       map[string]any{"type": "string"},
			"assignee":    map[string]any{"type": "string"},
			"url":         map[string]any{"type": "string", "description": "Endpoint for api_call. Supports {{path}} templates"},
			"method":      map[string]any{"type": "string", "enum": []string{"GET", "POST", "PUT", "PATCH", "DELETE"}},
			"headers":     map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
			"body":        map[string]any{"type": "object"},
			"report_type": map[string]any{"type": "string"},
		},
		"required": []string{"action_type"},
		"allOf": []map[string]any{
			{
				"if":   map[string]any{"properties": map[string]any{"action_type": map[string]any{"const": models.ActionAPICall}}},
				"then": map[string]any{"required": []string{"url"}},
			},
			{
				"if":   map[string]any{"properties": map[string]any{"action_type": map[string]any{"const": models.ActionUpdateDatabase}}},
				"then": map[string]any{"required": []string{"table", "record_id"}},
			},
		},
		"examples": []map[string]any{
			{"action_type": "update_database", "table": "orders", "record_id": "{{order.id}}", "fields": map[string]any{"status": "approved"}},
			{"action_type": "api_call", "url": "https://erp.example.com/stock/{{order.sku}}", "method": "GET"},
		},
	}
}
