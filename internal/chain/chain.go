// Package chain is the boundary to the token ledger: balances, signed token
// transfers, faucet mints and receipt lookups.
package chain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avanomad/avanomad/internal/keys"
)

var (
	// ErrInsufficientFunds is returned when the sender cannot cover a transfer.
	ErrInsufficientFunds = errors.New("insufficient token balance")
	// ErrInvalidAddress is returned for malformed destination addresses.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Receipt describes a mined transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Success     bool
}

// Gateway is implemented by ledger backends.
type Gateway interface {
	// Ping verifies the backend is reachable and the token is deployed.
	Ping(ctx context.Context) error
	// Operator is the faucet address used for mints and gas funding.
	Operator() string
	NativeBalance(ctx context.Context, address string) (decimal.Decimal, error)
	TokenBalance(ctx context.Context, address string) (decimal.Decimal, error)
	// Transfer submits a token transfer signed by from and returns its hash.
	Transfer(ctx context.Context, from *keys.Identity, to string, amount decimal.Decimal) (string, error)
	Mint(ctx context.Context, to string, amount decimal.Decimal) (string, error)
	FundGas(ctx context.Context, to string, amount decimal.Decimal) (string, error)
	// Receipt returns nil without error while the transaction is unknown or pending.
	Receipt(ctx context.Context, txHash string) (*Receipt, error)
}

// WaitForReceipt polls gw until a receipt for txHash appears. It returns nil,
// nil when timeout elapses first. Lookup errors are treated as "not yet".
func WaitForReceipt(ctx context.Context, gw Gateway, txHash string, timeout, interval time.Duration) (*Receipt, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if r, err := gw.Receipt(ctx, txHash); err == nil && r != nil {
			return r, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-ticker.C:
		}
	}
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
