// Package delay provides the node that pauses an execution for a fixed period.
package delay

import (
	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
)

// NodeFactory creates delay nodes.
type NodeFactory struct{}

// NewNodeFactory creates a new factory instance.
func NewNodeFactory() protocol.NodeFactory {
	return &NodeFactory{}
}

// Create creates a new delay node handler.
func (f *NodeFactory) Create(deps protocol.Dependencies) (protocol.NodeHandler, error) {
	sleep := deps.Sleep
	if sleep == nil {
		sleep = protocol.SleepContext
	}

	return &Node{sleep: sleep}, nil
}

func (f *NodeFactory) ID() models.NodeType {
	return models.NodeTypeDelay
}

func (f *NodeFactory) Name() string {
	return "Delay"
}

func (f *NodeFactory) Description() string {
	return "Waits for a number of seconds, minutes, hours or days before continuing"
}

// Schema returns the JSON schema for delay node configuration.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"delay_type": map[string]any{
				"type": "string",
				"enum": []string{models.DelaySeconds, models.DelayMinutes, models.DelayHours, models.DelayDays},
			},
			"delay_value": map[string]any{
				"type":    "number",
				"minimum": 0,
			},
		},
		"required": []string{"delay_type", "delay_value"},
		"examples": []map[string]any{
			{"delay_type": "days", "delay_value": 3},
			{"delay_type": "minutes", "delay_value": 30},
		},
	}
}
