// Package models defines core node-based workflow models for graph execution
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NodeType identifies the handler a node dispatches to.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger"
	NodeTypeCondition NodeType = "condition"
	NodeTypeAction    NodeType = "action"
	NodeTypeApproval  NodeType = "approval"
	NodeTypeDelay     NodeType = "delay"
	NodeTypeWebhook   NodeType = "webhook"
	NodeTypeEmail     NodeType = "email"
	NodeTypeSMS       NodeType = "sms"
)

// NodeTypes lists every node type the engine understands.
var NodeTypes = []NodeType{
	NodeTypeTrigger,
	NodeTypeCondition,
	NodeTypeAction,
	NodeTypeApproval,
	NodeTypeDelay,
	NodeTypeWebhook,
	NodeTypeEmail,
	NodeTypeSMS,
}

var ErrUnknownNodeType = errors.New("unknown node type")

// Position is the node's place on the editor canvas. The engine never reads it.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// RetryPolicy configures automatic re-invocation of a failing node handler.
type RetryPolicy struct {
	MaxAttempts       int    `json:"max_attempts"                  yaml:"max_attempts"                  validate:"min=1,max=10"`
	Strategy          string `json:"strategy,omitempty"            yaml:"strategy,omitempty"            validate:"omitempty,oneof=fixed exponential"`
	InitialIntervalMs int    `json:"initial_interval_ms,omitempty" yaml:"initial_interval_ms,omitempty" validate:"min=0"`
	MaxIntervalMs     int    `json:"max_interval_ms,omitempty"     yaml:"max_interval_ms,omitempty"     validate:"min=0"`
}

// NodeConfig is the type-specific configuration carried by a node.
type NodeConfig interface {
	NodeType() NodeType
}

// WorkflowNode is a typed unit of work in the workflow graph.
// Connections is the adjacency list; incoming edges are not tracked.
type WorkflowNode struct {
	ID             string       `json:"id"                        validate:"required"`
	Type           NodeType     `json:"type"                      validate:"required"`
	Name           string       `json:"name"                      validate:"required,min=1"`
	Position       Position     `json:"position"`
	Connections    []string     `json:"connections"`
	Writes         []string     `json:"writes,omitempty"`
	Retry          *RetryPolicy `json:"retry,omitempty"           validate:"omitempty"`
	TimeoutSeconds int          `json:"timeout_seconds,omitempty" validate:"min=0"`
	Config         NodeConfig   `json:"config"`
}

type workflowNodeJSON struct {
	ID             string          `json:"id"`
	Type           NodeType        `json:"type"`
	Name           string          `json:"name"`
	Position       Position        `json:"position"`
	Connections    []string        `json:"connections"`
	Writes         []string        `json:"writes,omitempty"`
	Retry          *RetryPolicy    `json:"retry,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds,omitempty"`
	Config         json.RawMessage `json:"config,omitempty"`
}

// NewNodeConfig returns an empty config value for the given node type.
func NewNodeConfig(nodeType NodeType) (NodeConfig, error) {
	switch nodeType {
	case NodeTypeTrigger:
		return &TriggerConfig{}, nil
	case NodeTypeCondition:
		return &ConditionConfig{}, nil
	case NodeTypeAction:
		return &ActionConfig{}, nil
	case NodeTypeApproval:
		return &ApprovalConfig{}, nil
	case NodeTypeDelay:
		return &DelayConfig{}, nil
	case NodeTypeWebhook:
		return &WebhookConfig{}, nil
	case NodeTypeEmail:
		return &EmailConfig{}, nil
	case NodeTypeSMS:
		return &SMSConfig{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}
}

// UnmarshalJSON decodes the node, picking the config shape from the node type.
func (n *WorkflowNode) UnmarshalJSON(data []byte) error {
	var raw workflowNodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	config, err := NewNodeConfig(raw.Type)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}

	if len(raw.Config) > 0 && string(raw.Config) != "null" {
		if err := json.Unmarshal(raw.Config, config); err != nil {
			return fmt.Errorf("node %s: invalid %s config: %w", raw.ID, raw.Type, err)
		}
	}

	*n = WorkflowNode{
		ID:             raw.ID,
		Type:           raw.Type,
		Name:           raw.Name,
		Position:       raw.Position,
		Connections:    raw.Connections,
		Writes:         raw.Writes,
		Retry:          raw.Retry,
		TimeoutSeconds: raw.TimeoutSeconds,
		Config:         config,
	}

	return nil
}

// ConfigMismatch reports whether the config value does not belong to the node type.
func (n *WorkflowNode) ConfigMismatch() bool {
	return n.Config == nil || n.Config.NodeType() != n.Type
}

// HasConnections reports whether the node has outgoing edges.
func (n *WorkflowNode) HasConnections() bool {
	return len(n.Connections) > 0
}

// TriggerConfig configures the entry node. It carries no behavior.
type TriggerConfig struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

func (*TriggerConfig) NodeType() NodeType { return NodeTypeTrigger }

// Condition operators.
const (
	OperatorEquals      = "equals"
	OperatorNotEquals   = "not_equals"
	OperatorGreaterThan = "greater_than"
	OperatorLessThan    = "less_than"
	OperatorContains    = "contains"
	OperatorStartsWith  = "starts_with"
	OperatorEndsWith    = "ends_with"
	OperatorIsEmpty     = "is_empty"
	OperatorIsNotEmpty  = "is_not_empty"
)

// Logical combinators for a condition list.
const (
	LogicAnd = "and"
	LogicOr  = "or"
)

// Condition is a single predicate evaluated against the variable bag.
type Condition struct {
	Field    string `json:"field"           yaml:"field"`
	Operator string `json:"operator"        yaml:"operator"`
	Value    any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// ConditionConfig combines predicates with and/or.
type ConditionConfig struct {
	Conditions []Condition `json:"conditions" yaml:"conditions"`
	Operator   string      `json:"operator"   yaml:"operator"`
}

func (*ConditionConfig) NodeType() NodeType { return NodeTypeCondition }

// Action types supported by the action node.
const (
	ActionUpdateDatabase   = "update_database"
	ActionSendNotification = "send_notification"
	ActionCreateTask       = "create_task"
	ActionAPICall          = "api_call"
	ActionGenerateReport   = "generate_report"
)

// ActionConfig configures an action node. Only the fields relevant to ActionType are read.
type ActionConfig struct {
	ActionType string            `json:"action_type"          yaml:"action_type"`
	Table      string            `json:"table,omitempty"      yaml:"table,omitempty"`
	RecordID   string            `json:"record_id,omitempty"  yaml:"record_id,omitempty"`
	Fields     map[string]any    `json:"fields,omitempty"     yaml:"fields,omitempty"`
	Recipients []string          `json:"recipients,omitempty" yaml:"recipients,omitempty"`
	Message    string            `json:"message,omitempty"    yaml:"message,omitempty"`
	Title      string            `json:"title,omitempty"      yaml:"title,omitempty"`
	Assignee   string            `json:"assignee,omitempty"   yaml:"assignee,omitempty"`
	URL        string            `json:"url,omitempty"        yaml:"url,omitempty"`
	Method     string            `json:"method,omitempty"     yaml:"method,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"    yaml:"headers,omitempty"`
	Body       map[string]any    `json:"body,omitempty"       yaml:"body,omitempty"`
	ReportType string            `json:"report_type,omitempty" yaml:"report_type,omitempty"`
}

func (*ActionConfig) NodeType() NodeType { return NodeTypeAction }

// ApprovalConfig configures a human approval gate.
type ApprovalConfig struct {
	Approvers    []string `json:"approvers"               yaml:"approvers"`
	Message      string   `json:"message,omitempty"       yaml:"message,omitempty"`
	TimeoutHours float64  `json:"timeout_hours,omitempty" yaml:"timeout_hours,omitempty"`
}

func (*ApprovalConfig) NodeType() NodeType { return NodeTypeApproval }

// Delay units.
const (
	DelaySeconds = "seconds"
	DelayMinutes = "minutes"
	DelayHours   = "hours"
	DelayDays    = "days"
)

// DelayConfig pauses the execution for DelayValue units of DelayType.
type DelayConfig struct {
	DelayType  string  `json:"delay_type"  yaml:"delay_type"`
	DelayValue float64 `json:"delay_value" yaml:"delay_value"`
}

func (*DelayConfig) NodeType() NodeType { return NodeTypeDelay }

// WebhookConfig configures an outbound HTTP call.
type WebhookConfig struct {
	URL     string            `json:"url"               yaml:"url"`
	Method  string            `json:"method,omitempty"  yaml:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    map[string]any    `json:"body,omitempty"    yaml:"body,omitempty"`
}

func (*WebhookConfig) NodeType() NodeType { return NodeTypeWebhook }

// EmailConfig configures a templated bulk email.
type EmailConfig struct {
	Recipients []string       `json:"recipients"          yaml:"recipients"`
	Subject    string         `json:"subject"             yaml:"subject"`
	Template   string         `json:"template"            yaml:"template"`
	Variables  map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
}

func (*EmailConfig) NodeType() NodeType { return NodeTypeEmail }

// SMSConfig configures a templated text message.
type SMSConfig struct {
	To        string         `json:"to"                  yaml:"to"`
	Message   string         `json:"message"             yaml:"message"`
	Variables map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
}

func (*SMSConfig) NodeType() NodeType { return NodeTypeSMS }
