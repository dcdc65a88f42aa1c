// Package jobs runs the periodic background work: payout status checks,
// deposit settlement, receipt reconciliation and session expiry.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/avanomad/avanomad/internal/funding"
	"github.com/avanomad/avanomad/internal/payments"
	"github.com/avanomad/avanomad/internal/payout"
)

// PayoutChecker polls pending payouts.
type PayoutChecker interface {
	CheckPending(ctx context.Context) (payout.CheckSummary, error)
}

// DepositProcessor settles completed deposits.
type DepositProcessor interface {
	Run(ctx context.Context) (funding.Summary, error)
}

// Reconciler settles transactions still waiting for a receipt.
type Reconciler interface {
	Reconcile(ctx context.Context) (payments.ReconcileSummary, error)
}

// SessionSweeper removes idle dialog sessions.
type SessionSweeper interface {
	SweepExpired(ctx context.Context, now time.Time, idle time.Duration) (int, error)
}

// Jobs contains the logic for all scheduled tasks. Nil collaborators turn
// the matching job into a no-op.
type Jobs struct {
	payouts  PayoutChecker
	deposits DepositProcessor
	receipts Reconciler
	sessions SessionSweeper
	idle     time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises Jobs.
type Option func(*Jobs)

// WithClock overrides the time source used by the session sweep.
func WithClock(now func() time.Time) Option {
	return func(j *Jobs) { j.now = now }
}

// WithTimeout bounds every job run.
func WithTimeout(d time.Duration) Option {
	return func(j *Jobs) { j.timeout = d }
}

// NewJobs creates a new Jobs runner.
func NewJobs(payouts PayoutChecker, deposits DepositProcessor, receipts Reconciler, sessions SessionSweeper, idle time.Duration, logger *slog.Logger, opts ...Option) *Jobs {
	j := &Jobs{
		payouts:  payouts,
		deposits: deposits,
		receipts: receipts,
		sessions: sessions,
		idle:     idle,
		timeout:  5 * time.Minute,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Jobs) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), j.timeout)
}

// CheckPayouts polls the payout gateway for every pending payout.
func (j *Jobs) CheckPayouts() {
	if j.payouts == nil {
		return
	}
	j.logger.Info("starting payout status job")
	ctx, cancel := j.context()
	defer cancel()

	summary, err := j.payouts.CheckPending(ctx)
	if err != nil {
		j.logger.Error("failed to check pending payouts", "error", err)
		return
	}
	j.logger.Info("payout status job finished", "checked", summary.Checked, "completed", summary.Completed, "failed", summary.Failed)
}

// ProcessDeposits runs the deposit settlement processor.
func (j *Jobs) ProcessDeposits() {
	if j.deposits == nil {
		return
	}
	j.logger.Info("starting deposit processing job")
	ctx, cancel := j.context()
	defer cancel()

	summary, err := j.deposits.Run(ctx)
	if err != nil {
		j.logger.Error("failed to process deposits", "error", err)
		return
	}
	j.logger.Info("deposit processing job finished", "processed", summary.Processed, "failed", summary.Failed)
}

// ReconcileReceipts settles transactions submitted without a receipt.
func (j *Jobs) ReconcileReceipts() {
	if j.receipts == nil {
		return
	}
	j.logger.Info("starting receipt reconciliation job")
	ctx, cancel := j.context()
	defer cancel()

	summary, err := j.receipts.Reconcile(ctx)
	if err != nil {
		j.logger.Error("failed to reconcile receipts", "error", err)
		return
	}
	j.logger.Info("receipt reconciliation job finished", "checked", summary.Checked, "completed", summary.Completed, "failed", summary.Failed)
}

// SweepSessions deletes sessions idle for longer than the idle timeout.
func (j *Jobs) SweepSessions() {
	if j.sessions == nil {
		return
	}
	ctx, cancel := j.context()
	defer cancel()

	removed, err := j.sessions.SweepExpired(ctx, j.now(), j.idle)
	if err != nil {
		j.logger.Error("failed to sweep sessions", "error", err)
		return
	}
	if removed > 0 {
		j.logger.Info("cleaned up expired sessions", "removed", removed)
	}
}
