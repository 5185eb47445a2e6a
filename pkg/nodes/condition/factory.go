// Package condition provides the branching node that gates traversal on predicates over the variable bag.
package condition

import (
	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
)

// NodeFactory creates condition nodes.
type NodeFactory struct{}

// NewNodeFactory creates a new factory instance.
func NewNodeFactory() protocol.NodeFactory {
	return &NodeFactory{}
}

// Create creates a new condition node handler.
func (f *NodeFactory) Create(_ protocol.Dependencies) (protocol.NodeHandler, error) {
	return &Node{}, nil
}

func (f *NodeFactory) ID() models.NodeType {
	return models.NodeTypeCondition
}

func (f *NodeFactory) Name() string {
	return "Condition"
}

func (f *NodeFactory) Description() string {
	return "Evaluates predicates against execution variables and halts the branch when they do not hold"
}

// Schema returns the JSON schema for condition node configuration.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"conditions": map[string]any{
				"type":        "array",
				"description": "Predicates evaluated against execution variables",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"field": map[string]any{
							"type":        "string",
							"description": "Dotted path into variables",
							"examples":    []string{"order.total", "customer.tier"},
						},
						"operator": map[string]any{
							"type": "string",
							"enum": []string{
								models.OperatorEquals,
								models.OperatorNotEquals,
								models.OperatorGreaterThan,
								models.OperatorLessThan,
								models.OperatorContains,
								models.OperatorStartsWith,
								models.OperatorEndsWith,
								models.OperatorIsEmpty,
								models.OperatorIsNotEmpty,
							},
						},
						"value": map[string]any{
							"description": "Right-hand operand. Ignored by is_empty and is_not_empty",
						},
					},
					"required": []string{"field", "operator"},
				},
			},
			"operator": map[string]any{
				"type":    "string",
				"enum":    []string{models.LogicAnd, models.LogicOr},
				"default": models.LogicAnd,
			},
		},
		"required": []string{"conditions"},
		"examples": []map[string]any{
			{
				"conditions": []map[string]any{
					{"field": "order.total", "operator": "greater_than", "value": 500},
					{"field": "customer.tier", "operator": "equals", "value": "gold"},
				},
				"operator": "and",
			},
		},
	}
}
