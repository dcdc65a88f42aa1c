package jobs

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/avanomad/avanomad/internal/funding"
	"github.com/avanomad/avanomad/internal/logging"
	"github.com/avanomad/avanomad/internal/payments"
	"github.com/avanomad/avanomad/internal/payout"
	"github.com/avanomad/avanomad/internal/session"
)

type payoutStub struct {
	calls int
	err   error
}

func (s *payoutStub) CheckPending(context.Context) (payout.CheckSummary, error) {
	s.calls++
	return payout.CheckSummary{Checked: 2, Completed: 1}, s.err
}

type depositStub struct{ calls int }

func (s *depositStub) Run(context.Context) (funding.Summary, error) {
	s.calls++
	return funding.Summary{Processed: 3}, nil
}

type reconcileStub struct{ calls int }

func (s *reconcileStub) Reconcile(context.Context) (payments.ReconcileSummary, error) {
	s.calls++
	return payments.ReconcileSummary{}, nil
}

type idleState struct{}

func (idleState) StateName() string { return "JOBS_IDLE" }

func init() {
	session.Register[idleState]("JOBS_IDLE")
}

func TestJobsInvokeCollaborators(t *testing.T) {
	p, d, r := &payoutStub{}, &depositStub{}, &reconcileStub{}
	j := NewJobs(p, d, r, nil, time.Hour, logging.Discard())

	j.CheckPayouts()
	j.ProcessDeposits()
	j.ReconcileReceipts()
	j.SweepSessions()

	if p.calls != 1 || d.calls != 1 || r.calls != 1 {
		t.Fatalf("unexpected calls payouts=%d deposits=%d receipts=%d", p.calls, d.calls, r.calls)
	}
}

func TestJobErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	p := &payoutStub{err: errors.New("gateway down")}
	j := NewJobs(p, nil, nil, nil, time.Hour, logging.NewWriter(&buf, "info"))

	j.CheckPayouts()
	j.ProcessDeposits()

	if !strings.Contains(buf.String(), "failed to check pending payouts") || !strings.Contains(buf.String(), "gateway down") {
		t.Fatalf("expected error log, got %s", buf.String())
	}
}

func TestSweepSessionsRemovesIdle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := session.NewMemoryStore()
	_ = store.Set(ctx, &session.Session{ID: "old", State: idleState{}, LastActivity: now.Add(-2 * time.Hour)})
	_ = store.Set(ctx, &session.Session{ID: "fresh", State: idleState{}, LastActivity: now.Add(-time.Minute)})

	j := NewJobs(nil, nil, nil, store, time.Hour, logging.Discard(), WithClock(func() time.Time { return now }))
	j.SweepSessions()

	if store.Len() != 1 {
		t.Fatalf("expected one session left, got %d", store.Len())
	}
	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Fatalf("fresh session removed: %v", err)
	}
}

func TestSchedulerSkipsInvalidSpecs(t *testing.T) {
	j := NewJobs(&payoutStub{}, nil, nil, nil, time.Hour, logging.Discard())
	s := NewScheduler(j, Schedules{PayoutCheck: "@every 1h", DepositProcess: "not a spec"}, logging.Discard())

	if n := s.Start(); n != 1 {
		t.Fatalf("expected one scheduled job, got %d", n)
	}
	<-s.Stop().Done()
}
