// Package ledger is the audit log of every money movement the service
// attempts: deposits, withdrawals, transfers and their counterparts.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicateReference occurs when a record of the same type already
	// carries the reference.
	ErrDuplicateReference = errors.New("duplicate transaction reference")

	// ErrTransactionNotFound is returned for unknown record ids.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInvalidTransition guards the PENDING->COMPLETED|FAILED lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadySettled is returned when a settlement hash is already present.
	ErrAlreadySettled = errors.New("transaction already settled")
)

// Type classifies a transaction record.
type Type string

const (
	TypeDeposit    Type = "DEPOSIT"
	TypeWithdrawal Type = "WITHDRAWAL"
	TypeTransfer   Type = "TRANSFER"
	TypeReceive    Type = "RECEIVE"
	TypeGasFunding Type = "GAS_FUNDING"
	TypePayout     Type = "PAYOUT"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeTransfer, TypeReceive, TypeGasFunding, TypePayout:
		return true
	}
	return false
}

// Status is the lifecycle position of a record.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted || s == StatusFailed
}

// Transaction is one audit record.
type Transaction struct {
	ID       string
	UserID   string
	Amount   decimal.Decimal
	Currency string
	Type     Type
	Status   Status
	// Reference is the chain tx hash on success, failed-<ts> on failure, or
	// the payout provider reference.
	Reference        string
	WalletAddress    string
	BlockchainTxHash string
	BlockNumber      uint64
	// TxHash is the settlement hash set by the deposit processor.
	TxHash                 string
	FailureReason          string
	RecipientWalletAddress string
	SenderWalletAddress    string
	BankCode               string
	AccountNumber          string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Filter selects records. Zero fields match everything.
type Filter struct {
	UserID string
	Type   Type
	Status Status
	// Unsettled limits to records without a settlement hash.
	Unsettled bool
	// AwaitingReceipt limits to PENDING records carrying a chain hash.
	AwaitingReceipt bool
	Limit           int
}

// Matches applies the filter to a single record.
func (f Filter) Matches(tx Transaction) bool {
	if f.UserID != "" && tx.UserID != f.UserID {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.Unsettled && tx.TxHash != "" {
		return false
	}
	if f.AwaitingReceipt && (tx.Status != StatusPending || tx.BlockchainTxHash == "") {
		return false
	}
	return true
}

// Repository persists transaction records. Create rejects a second record
// with the same (reference, type) pair.
type Repository interface {
	Create(ctx context.Context, tx Transaction) error
	Get(ctx context.Context, id string) (Transaction, error)
	FindByReference(ctx context.Context, reference string) ([]Transaction, error)
	List(ctx context.Context, filter Filter) ([]Transaction, error)
	Complete(ctx context.Context, id string, blockNumber uint64, at time.Time) error
	Fail(ctx context.Context, id, reason string, at time.Time) error
	SetSettlementHash(ctx context.Context, id, hash string, at time.Time) error
}
