package protocol

import "context"

// EmailSender delivers an email to many recipients.
type EmailSender interface {
	SendBulkEmail(ctx context.Context, recipients []string, subject, body string) error
}

// SMSSender delivers a text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// Notifier pushes an in-app notification to back-office users.
type Notifier interface {
	Notify(ctx context.Context, recipients []string, title, message string, data map[string]any) error
}

// RecordUpdater applies field updates to a record in the store's relational backend.
type RecordUpdater interface {
	UpdateRecord(ctx context.Context, table, recordID string, fields map[string]any) error
}

// TaskCreator opens a task for a back-office user.
type TaskCreator interface {
	CreateTask(ctx context.Context, title, assignee string, data map[string]any) (string, error)
}

// ReportGenerator produces a named report and returns where it can be fetched.
type ReportGenerator interface {
	GenerateReport(ctx context.Context, reportType string, params map[string]any) (string, error)
}
