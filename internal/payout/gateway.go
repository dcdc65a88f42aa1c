// Package payout connects withdrawals to the fiat payout provider.
package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the provider view of a payout.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Order is a request to credit a bank account.
type Order struct {
	Amount        decimal.Decimal
	Currency      string
	BankCode      string
	AccountNumber string
}

// Decision is the provider answer to an order.
type Decision struct {
	Reference string
	Message   string
}

// Check is the provider answer to a status query.
type Check struct {
	Status        Status
	FailureReason string
}

// Gateway represents a connector to an external payout provider.
type Gateway interface {
	RequestPayout(ctx context.Context, order Order) (Decision, error)
	Status(ctx context.Context, reference string, requestedAt time.Time) (Check, error)
}

// MockGateway accepts every order and reports it completed once settleAfter
// has elapsed since the request.
type MockGateway struct {
	settleAfter time.Duration
	now         func() time.Time
}

// NewMockGateway builds a simulated provider.
func NewMockGateway(settleAfter time.Duration) *MockGateway {
	return &MockGateway{settleAfter: settleAfter, now: time.Now}
}

// RequestPayout approves the order with a payout-<unixms>-<8 hex> reference.
func (g *MockGateway) RequestPayout(_ context.Context, _ Order) (Decision, error) {
	ref := fmt.Sprintf("payout-%d-%s", g.now().UnixMilli(), uuid.NewString()[:8])
	return Decision{Reference: ref, Message: "Payout request accepted"}, nil
}

// Status reports completion based on the age of the request.
func (g *MockGateway) Status(_ context.Context, _ string, requestedAt time.Time) (Check, error) {
	if g.now().Sub(requestedAt) > g.settleAfter {
		return Check{Status: StatusCompleted}, nil
	}
	return Check{Status: StatusPending}, nil
}
