package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service records and advances transaction records.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a ledger service over repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock returns a copy of s using now for timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	return &Service{repo: s.repo, now: now}
}

// Now returns the service clock reading in UTC.
func (s *Service) Now() time.Time { return s.now().UTC() }

// FailedReference builds the synthetic reference stored on failed attempts.
func (s *Service) FailedReference() string {
	return fmt.Sprintf("failed-%d", s.now().UnixNano())
}

// Record validates tx, assigns id and timestamps, and stores it.
func (s *Service) Record(ctx context.Context, tx Transaction) (Transaction, error) {
	if tx.UserID == "" {
		return Transaction{}, errors.New("user id is required")
	}
	if !tx.Type.Valid() {
		return Transaction{}, fmt.Errorf("unknown transaction type %q", tx.Type)
	}
	if tx.Status == "" {
		tx.Status = StatusPending
	}
	if !tx.Status.Valid() {
		return Transaction{}, fmt.Errorf("unknown transaction status %q", tx.Status)
	}
	if tx.Reference == "" {
		return Transaction{}, errors.New("reference is required")
	}
	if tx.Amount.IsNegative() {
		return Transaction{}, errors.New("amount must not be negative")
	}

	now := s.Now()
	tx.ID = uuid.New().String()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	if err := s.repo.Create(ctx, tx); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// Complete moves a PENDING record to COMPLETED.
func (s *Service) Complete(ctx context.Context, id string, blockNumber uint64) error {
	return s.repo.Complete(ctx, id, blockNumber, s.Now())
}

// Fail moves a PENDING record to FAILED with reason.
func (s *Service) Fail(ctx context.Context, id, reason string) error {
	return s.repo.Fail(ctx, id, reason, s.Now())
}

// Settle stores the settlement hash of a record that has none yet.
func (s *Service) Settle(ctx context.Context, id, hash string) error {
	return s.repo.SetSettlementHash(ctx, id, hash, s.Now())
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (Transaction, error) {
	return s.repo.Get(ctx, id)
}

// ByReference returns every record sharing reference.
func (s *Service) ByReference(ctx context.Context, reference string) ([]Transaction, error) {
	return s.repo.FindByReference(ctx, reference)
}

// List returns records matching filter, oldest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Transaction, error) {
	return s.repo.List(ctx, filter)
}
