// Package messaging provides the outbound collaborators used by node handlers:
// slog-backed defaults and event bus senders that hand messages to a delivery service.
package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// LogCollaborator records every side effect in the log instead of performing it.
// It satisfies every collaborator interface a node handler depends on.
type LogCollaborator struct {
	logger *slog.Logger
}

func NewLogCollaborator(logger *slog.Logger) *LogCollaborator {
	return &LogCollaborator{logger: logger.With("module", "messaging")}
}

func (c *LogCollaborator) SendBulkEmail(ctx context.Context, recipients []string, subject, body string) error {
	c.logger.InfoContext(ctx, "email sent", "recipients", recipients, "subject", subject, "body_length", len(body))

	return nil
}

func (c *LogCollaborator) SendSMS(ctx context.Context, to, message string) error {
	c.logger.InfoContext(ctx, "sms sent", "to", to, "message_length", len(message))

	return nil
}

func (c *LogCollaborator) Notify(ctx context.Context, recipients []string, title, message string, data map[string]any) error {
	c.logger.InfoContext(ctx, "notification sent", "recipients", recipients, "title", title, "message", message, "data", data)

	return nil
}

func (c *LogCollaborator) UpdateRecord(ctx context.Context, table, recordID string, fields map[string]any) error {
	c.logger.InfoContext(ctx, "record updated", "table", table, "record_id", recordID, "fields", fields)

	return nil
}

func (c *LogCollaborator) CreateTask(ctx context.Context, title, assignee string, data map[string]any) (string, error) {
	id := uuid.New().String()
	c.logger.InfoContext(ctx, "task created", "task_id", id, "title", title, "assignee", assignee, "data", data)

	return id, nil
}

func (c *LogCollaborator) GenerateReport(ctx context.Context, reportType string, params map[string]any) (string, error) {
	location := "reports/" + reportType + "-" + time.Now().UTC().Format("20060102T150405") + ".csv"
	c.logger.InfoContext(ctx, "report generated", "report_type", reportType, "location", location, "params", params)

	return location, nil
}
