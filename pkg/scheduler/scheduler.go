// Package scheduler fires schedule triggers of active workflows and expires stale approvals.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/robfig/cron/v3"
)

const (
	// DefaultSyncSpec is how often stored workflows are re-read for schedule changes.
	DefaultSyncSpec = "@every 1m"

	// DefaultExpirySpec is how often pending approvals are checked against their deadline.
	DefaultExpirySpec = "@every 1m"
)

// Runner is the part of the workflow engine the scheduler drives.
type Runner interface {
	GetWorkflows(ctx context.Context, category models.WorkflowCategory) ([]*models.Workflow, error)
	ExecuteWorkflow(ctx context.Context, workflowID string, triggerData map[string]any) (*models.WorkflowExecution, error)
	ExpireApprovals(ctx context.Context, now time.Time) (int, error)
}

type Scheduler struct {
	logger     *slog.Logger
	runner     Runner
	cron       *cron.Cron
	now        func() time.Time
	syncSpec   string
	expirySpec string

	mu      sync.Mutex
	entries map[string]cron.EntryID
	ctx     context.Context
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithSyncSpec(spec string) Option {
	return func(s *Scheduler) { s.syncSpec = spec }
}

func WithExpirySpec(spec string) Option {
	return func(s *Scheduler) { s.expirySpec = spec }
}

func New(logger *slog.Logger, runner Runner, opts ...Option) *Scheduler {
	logger = logger.With("module", "scheduler")
	cronLogger := NewCronLogger(logger)

	s := &Scheduler{
		logger: logger,
		runner: runner,
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		now:        time.Now,
		syncSpec:   DefaultSyncSpec,
		expirySpec: DefaultExpirySpec,
		entries:    make(map[string]cron.EntryID),
		ctx:        context.Background(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ValidateSchedule checks a standard five-field cron expression (descriptors such as @daily allowed).
func ValidateSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	return nil
}

// Start registers the schedule triggers of every active workflow plus the housekeeping jobs and
// starts the cron loop. Jobs run with a context detached from ctx's cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	if err := s.Sync(ctx); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.syncSpec, s.resync); err != nil {
		return fmt.Errorf("failed to add sync job: %w", err)
	}

	if _, err := s.cron.AddFunc(s.expirySpec, s.expireApprovals); err != nil {
		return fmt.Errorf("failed to add approval expiry job: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "scheduler started", "schedules", s.Len())

	return nil
}

// Stop halts the cron loop and waits for running jobs or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "stopping scheduler")

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync reconciles cron entries with the enabled schedule triggers of active workflows.
// Entries whose trigger disappeared, was disabled or changed expression are removed.
func (s *Scheduler) Sync(ctx context.Context) error {
	workflows, err := s.runner.GetWorkflows(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	wanted := make(map[string]struct{})

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, workflow := range workflows {
		if !workflow.IsExecutable() {
			continue
		}

		for _, trigger := range workflow.Triggers {
			if !trigger.Enabled || trigger.Type != models.TriggerTypeSchedule {
				continue
			}

			key := entryKey(workflow.ID, trigger)
			wanted[key] = struct{}{}

			if _, ok := s.entries[key]; ok {
				continue
			}

			id, err := s.cron.AddFunc(trigger.Schedule, s.fireFunc(workflow.ID, trigger))
			if err != nil {
				s.logger.WarnContext(ctx, "skipping invalid schedule",
					"workflow_id", workflow.ID, "trigger_id", trigger.ID, "schedule", trigger.Schedule, "error", err)

				continue
			}

			s.entries[key] = id
			s.logger.DebugContext(ctx, "schedule registered", "workflow_id", workflow.ID, "trigger_id", trigger.ID, "schedule", trigger.Schedule)
		}
	}

	for key, id := range s.entries {
		if _, ok := wanted[key]; ok {
			continue
		}

		s.cron.Remove(id)
		delete(s.entries, key)
		s.logger.DebugContext(ctx, "schedule removed", "entry", key)
	}

	return nil
}

// Len returns the number of registered schedule triggers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func entryKey(workflowID string, trigger models.WorkflowTrigger) string {
	return workflowID + "/" + trigger.ID + "@" + trigger.Schedule
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ctx
}

func (s *Scheduler) fireFunc(workflowID string, trigger models.WorkflowTrigger) func() {
	return func() {
		s.fire(s.jobContext(), workflowID, trigger)
	}
}

func (s *Scheduler) fire(ctx context.Context, workflowID string, trigger models.WorkflowTrigger) {
	data := make(map[string]any, len(trigger.Data)+2)
	for k, v := range trigger.Data {
		data[k] = v
	}

	data["trigger_id"] = trigger.ID
	data["timestamp"] = s.now().UTC().Format(time.RFC3339)

	execution, err := s.runner.ExecuteWorkflow(ctx, workflowID, data)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled execution failed to start", "workflow_id", workflowID, "trigger_id", trigger.ID, "error", err)

		return
	}

	s.logger.InfoContext(ctx, "scheduled execution finished",
		"workflow_id", workflowID, "trigger_id", trigger.ID, "execution_id", execution.ID, "status", execution.Status)
}

func (s *Scheduler) resync() {
	ctx := s.jobContext()

	if err := s.Sync(ctx); err != nil {
		s.logger.ErrorContext(ctx, "schedule sync failed", "error", err)
	}
}

func (s *Scheduler) expireApprovals() {
	ctx := s.jobContext()

	expired, err := s.runner.ExpireApprovals(ctx, s.now())
	if err != nil {
		s.logger.ErrorContext(ctx, "approval expiry failed", "expired", expired, "error", err)

		return
	}

	if expired > 0 {
		s.logger.InfoContext(ctx, "expired pending approvals", "expired", expired)
	}
}
