// Package models defines the core domain models for back-office workflow automation
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not executable
	WorkflowStatusActive   WorkflowStatus = "active"   // Executable
	WorkflowStatusPaused   WorkflowStatus = "paused"   // Temporarily not executable
	WorkflowStatusArchived WorkflowStatus = "archived" // Retired, kept for history
)

// WorkflowCategory groups workflows by the business area they automate.
type WorkflowCategory string

const (
	CategorySales           WorkflowCategory = "sales"
	CategoryMarketing       WorkflowCategory = "marketing"
	CategoryInventory       WorkflowCategory = "inventory"
	CategoryCustomerService WorkflowCategory = "customer_service"
	CategoryFinance         WorkflowCategory = "finance"
	CategoryOperations      WorkflowCategory = "operations"
)

// Categories lists every known workflow category.
var Categories = []WorkflowCategory{
	CategorySales,
	CategoryMarketing,
	CategoryInventory,
	CategoryCustomerService,
	CategoryFinance,
	CategoryOperations,
}

// TriggerType identifies how a workflow gets started.
type TriggerType string

const (
	TriggerTypeManual   TriggerType = "manual"
	TriggerTypeSchedule TriggerType = "schedule"
	TriggerTypeEvent    TriggerType = "event"
)

// WorkflowTrigger describes an external source that starts the workflow.
type WorkflowTrigger struct {
	ID       string         `json:"id"                 yaml:"id"                 validate:"required"`
	Type     TriggerType    `json:"type"               yaml:"type"               validate:"required,oneof=manual schedule event"`
	Schedule string         `json:"schedule,omitempty" yaml:"schedule,omitempty" validate:"required_if=Type schedule"` // cron expression
	Event    string         `json:"event,omitempty"    yaml:"event,omitempty"    validate:"required_if=Type event"`
	Data     map[string]any `json:"data,omitempty"     yaml:"data,omitempty"` // merged into trigger data on fire
	Enabled  bool           `json:"enabled"            yaml:"enabled"`
}

// ExecutionStats holds cumulative counters for a workflow's terminal executions.
// TotalExecutions always equals the sum of the three outcome counters.
type ExecutionStats struct {
	TotalExecutions      int        `json:"total_executions"`
	SuccessfulExecutions int        `json:"successful_executions"`
	FailedExecutions     int        `json:"failed_executions"`
	CancelledExecutions  int        `json:"cancelled_executions"`
	AverageDurationMs    float64    `json:"average_duration_ms"`
	LastExecutedAt       *time.Time `json:"last_executed_at,omitempty"`
}

// Record folds one terminal execution into the stats. Non-terminal statuses are ignored.
func (s *ExecutionStats) Record(status ExecutionStatus, durationMs int64, at time.Time) {
	switch status {
	case ExecutionStatusCompleted:
		s.SuccessfulExecutions++
	case ExecutionStatusFailed:
		s.FailedExecutions++
	case ExecutionStatusCancelled:
		s.CancelledExecutions++
	default:
		return
	}

	s.TotalExecutions++
	n := float64(s.TotalExecutions)
	s.AverageDurationMs = (s.AverageDurationMs*(n-1) + float64(durationMs)) / n

	executedAt := at.UTC()
	s.LastExecutedAt = &executedAt
}

// Workflow is a versioned automation definition: a node graph plus the triggers that start it.
type Workflow struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"                  validate:"required,min=3"`
	Description string            `json:"description"`
	Category    WorkflowCategory  `json:"category"              validate:"required,oneof=sales marketing inventory customer_service finance operations"`
	Status      WorkflowStatus    `json:"status"                validate:"required,oneof=draft active paused archived"`
	Version     int               `json:"version"`
	Nodes       []*WorkflowNode   `json:"nodes"                 validate:"dive"`
	Triggers    []WorkflowTrigger `json:"triggers"              validate:"dive"`
	Variables   map[string]any    `json:"variables"`
	Stats       ExecutionStats    `json:"execution_stats"`
	Owner       string            `json:"owner"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// NodesOfType returns every node of the given type in definition order.
func (w *Workflow) NodesOfType(nodeType NodeType) []*WorkflowNode {
	var nodes []*WorkflowNode

	for _, node := range w.Nodes {
		if node.Type == nodeType {
			nodes = append(nodes, node)
		}
	}

	return nodes
}

// IsExecutable reports whether the workflow may start new executions.
func (w *Workflow) IsExecutable() bool {
	return w.Status == WorkflowStatusActive
}
