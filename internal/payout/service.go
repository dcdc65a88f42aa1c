package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/avanomad/avanomad/internal/ledger"
)

// ErrPayoutFailed wraps provider rejections.
var ErrPayoutFailed = errors.New("failed to initiate payout")

// Service records payout requests in the transaction log and advances them.
type Service struct {
	ledger   *ledger.Service
	gateway  Gateway
	currency string
	logger   *slog.Logger
}

// NewService builds a payout service. currency is the local fiat currency.
func NewService(l *ledger.Service, gateway Gateway, currency string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: l, gateway: gateway, currency: currency, logger: logger}
}

// RequestInput describes a payout for a user.
type RequestInput struct {
	UserID        string
	WalletAddress string
	Order         Order
}

// Request asks the provider to pay out and records the PENDING payout. A
// rejected order is recorded as FAILED and returned as ErrPayoutFailed.
func (s *Service) Request(ctx context.Context, input RequestInput) (ledger.Transaction, error) {
	order := input.Order
	if order.Currency == "" {
		order.Currency = s.currency
	}
	s.logger.Info("initiating fiat payout", "amount", order.Amount.String(), "currency", order.Currency, "account_number", order.AccountNumber)

	record := ledger.Transaction{
		UserID:        input.UserID,
		Amount:        order.Amount,
		Currency:      order.Currency,
		Type:          ledger.TypePayout,
		WalletAddress: input.WalletAddress,
		BankCode:      order.BankCode,
		AccountNumber: order.AccountNumber,
	}

	decision, err := s.gateway.RequestPayout(ctx, order)
	if err != nil {
		s.logger.Error("payout request failed", "error", err)
		record.Status = ledger.StatusFailed
		record.Reference = s.ledger.FailedReference()
		record.FailureReason = err.Error()
		if _, recErr := s.ledger.Record(ctx, record); recErr != nil {
			s.logger.Error("record failed payout", "error", recErr)
		}
		return ledger.Transaction{}, fmt.Errorf("%w: %v", ErrPayoutFailed, err)
	}

	record.Status = ledger.StatusPending
	record.Reference = decision.Reference
	return s.ledger.Record(ctx, record)
}

// CheckSummary reports a CheckPending pass.
type CheckSummary struct {
	Checked   int
	Completed int
	Failed    int
}

// CheckPending queries the provider for every PENDING payout and settles the
// ones it reports final. Per-record errors are logged and skipped.
func (s *Service) CheckPending(ctx context.Context) (CheckSummary, error) {
	pending, err := s.ledger.List(ctx, ledger.Filter{Type: ledger.TypePayout, Status: ledger.StatusPending})
	if err != nil {
		return CheckSummary{}, err
	}
	var summary CheckSummary
	if len(pending) == 0 {
		return summary, nil
	}
	s.logger.Info("checking pending payouts", "count", len(pending))

	for _, p := range pending {
		summary.Checked++
		check, err := s.gateway.Status(ctx, p.Reference, p.CreatedAt)
		if err != nil {
			s.logger.Error("check payout", "reference", p.Reference, "error", err)
			continue
		}
		switch check.Status {
		case StatusCompleted:
			if err := s.ledger.Complete(ctx, p.ID, 0); err != nil {
				s.logger.Error("complete payout", "reference", p.Reference, "error", err)
				continue
			}
			summary.Completed++
			s.logger.Info("payout completed", "reference", p.Reference)
		case StatusFailed:
			reason := check.FailureReason
			if reason == "" {
				reason = "Unknown reason"
			}
			if err := s.ledger.Fail(ctx, p.ID, reason); err != nil {
				s.logger.Error("fail payout", "reference", p.Reference, "error", err)
				continue
			}
			summary.Failed++
			s.logger.Warn("payout failed", "reference", p.Reference, "reason", reason)
		}
	}
	return summary, nil
}
