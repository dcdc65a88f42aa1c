package jobs

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Schedules holds one cron spec per job. Empty specs are skipped.
type Schedules struct {
	PayoutCheck      string
	DepositProcess   string
	ReceiptReconcile string
	SessionSweep     string
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	jobs      *Jobs
	schedules Schedules
	logger    *slog.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, schedules Schedules, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{cron: c, jobs: jobs, schedules: schedules, logger: logger}
}

// Start registers the jobs and starts the cron scheduler. It returns the
// number of jobs scheduled.
func (s *Scheduler) Start() int {
	entries := []struct {
		name string
		spec string
		run  func()
	}{
		{"payout check", s.schedules.PayoutCheck, s.jobs.CheckPayouts},
		{"deposit processing", s.schedules.DepositProcess, s.jobs.ProcessDeposits},
		{"receipt reconciliation", s.schedules.ReceiptReconcile, s.jobs.ReconcileReceipts},
		{"session sweep", s.schedules.SessionSweep, s.jobs.SweepSessions},
	}

	scheduled := 0
	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(e.spec, e.run); err != nil {
			s.logger.Error("failed to schedule job", "job", e.name, "schedule", e.spec, "error", err)
			continue
		}
		s.logger.Info("scheduled job", "job", e.name, "schedule", e.spec)
		scheduled++
	}

	s.cron.Start()
	return scheduled
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
