// Package events defines event types and structures for workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

const Topic = "storeflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Inbound: start a workflow from an external system.
	WorkflowTriggeredEvent EventType = "workflow.triggered"

	// Execution lifecycle.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"

	// Approvals.
	ApprovalRequestedEvent EventType = "approval.requested"
	ApprovalDecidedEvent   EventType = "approval.decided"

	// Outbound messaging hand-off.
	EmailRequestedEvent EventType = "notification.email.requested"
	SMSRequestedEvent   EventType = "notification.sms.requested"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// WorkflowTriggered asks the engine to execute a workflow.
// With WorkflowID empty, every active workflow whose event trigger matches EventName runs.
type WorkflowTriggered struct {
	BaseEvent

	EventName   string         `json:"event_name,omitempty"`
	TriggerID   string         `json:"trigger_id,omitempty"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e WorkflowTriggered) GetType() EventType {
	return WorkflowTriggeredEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID     string         `json:"execution_id"`
	WorkflowVersion int            `json:"workflow_version"`
	TriggerData     map[string]any `json:"trigger_data,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id,omitempty"`
	Error       string `json:"error"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Reason      string `json:"reason,omitempty"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type ApprovalRequested struct {
	BaseEvent

	ExecutionID string     `json:"execution_id"`
	NodeID      string     `json:"node_id"`
	Approvers   []string   `json:"approvers"`
	Message     string     `json:"message,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (e ApprovalRequested) GetType() EventType {
	return ApprovalRequestedEvent
}

// ApprovalDecided carries an approver's decision back to a suspended execution.
type ApprovalDecided struct {
	BaseEvent

	ExecutionID string                  `json:"execution_id"`
	NodeID      string                  `json:"node_id"`
	Decision    models.ApprovalDecision `json:"decision"`
	DecidedBy   string                  `json:"decided_by,omitempty"`
}

func (e ApprovalDecided) GetType() EventType {
	return ApprovalDecidedEvent
}

type EmailRequested struct {
	BaseEvent

	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

func (e EmailRequested) GetType() EventType {
	return EmailRequestedEvent
}

type SMSRequested struct {
	BaseEvent

	To      string `json:"to"`
	Message string `json:"message"`
}

func (e SMSRequested) GetType() EventType {
	return SMSRequestedEvent
}
