package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

type cronLogger struct {
	logger *slog.Logger
}

// NewCronLogger routes cron's internal logging to slog. Cron's info chatter is demoted to debug.
func NewCronLogger(logger *slog.Logger) cron.Logger {
	return &cronLogger{logger: logger}
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
