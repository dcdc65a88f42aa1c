package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avanomad/avanomad/internal/chain"
)

// Service exposes wallet operations backed by the chain gateway.
type Service struct {
	repo     Repository
	chain    chain.Gateway
	currency string
	now      func() time.Time
}

// NewService builds a wallet service instance. currency is the default
// token symbol recorded on new wallets.
func NewService(repo Repository, gateway chain.Gateway, currency string) *Service {
	return &Service{repo: repo, chain: gateway, currency: currency, now: time.Now}
}

// OpenInput captures data required to open a wallet.
type OpenInput struct {
	UserID       string
	Address      string
	EncryptedKey string
}

// Open creates the wallet for a user, or returns the existing one when it
// was already created by an earlier or concurrent request.
func (s *Service) Open(ctx context.Context, input OpenInput) (Wallet, error) {
	if _, err := uuid.Parse(input.UserID); err != nil {
		return Wallet{}, fmt.Errorf("invalid user id: %w", err)
	}
	if input.Address == "" {
		return Wallet{}, errors.New("wallet address is required")
	}

	if existing, err := s.repo.FindByUser(ctx, input.UserID); err == nil {
		return existing, nil
	}

	now := s.now().UTC()
	w := Wallet{
		ID:           uuid.New().String(),
		UserID:       input.UserID,
		Address:      input.Address,
		EncryptedKey: input.EncryptedKey,
		Currency:     s.currency,
		Balance:      decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, w); err != nil {
		if errors.Is(err, ErrWalletExists) {
			if existing, findErr := s.repo.FindByUser(ctx, input.UserID); findErr == nil {
				return existing, nil
			}
		}
		return Wallet{}, err
	}
	return w, nil
}

// ForUser returns the wallet owned by userID.
func (s *Service) ForUser(ctx context.Context, userID string) (Wallet, error) {
	return s.repo.FindByUser(ctx, userID)
}

// ByAddress returns the wallet registered at address.
func (s *Service) ByAddress(ctx context.Context, address string) (Wallet, error) {
	return s.repo.FindByAddress(ctx, address)
}

// Balance reads native and token balances for w from the chain and refreshes
// the cached balance. A failed token read is reported in TokenErr, not as an error.
func (s *Service) Balance(ctx context.Context, w Wallet) (Balance, error) {
	native, err := s.chain.NativeBalance(ctx, w.Address)
	if err != nil {
		return Balance{}, err
	}
	out := Balance{Address: w.Address, Native: native, Token: decimal.Zero, AsOf: s.now().UTC()}

	token, err := s.chain.TokenBalance(ctx, w.Address)
	if err != nil {
		out.TokenErr = err
		return out, nil
	}
	out.Token = token

	if w.ID != "" {
		if err := s.repo.UpdateBalance(ctx, w.ID, token, out.AsOf); err != nil && !errors.Is(err, ErrWalletNotFound) {
			return out, fmt.Errorf("refresh balance cache: %w", err)
		}
	}
	return out, nil
}
