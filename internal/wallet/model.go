package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet binds a user to an on-chain address. Balance is a cache only; the
// chain is the source of truth.
type Wallet struct {
	ID           string
	UserID       string
	Address      string
	EncryptedKey string
	Currency     string
	Balance      decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Balance is a live reading from the chain.
type Balance struct {
	Address string
	Native  decimal.Decimal
	Token   decimal.Decimal
	// TokenErr is set when the token balance could not be read and Token is zero.
	TokenErr error
	AsOf     time.Time
}
