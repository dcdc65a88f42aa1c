package wallet

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Wallet
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Wallet)}
}

func (r *memoryRepository) Create(_ context.Context, wallet Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.storage {
		if w.UserID == wallet.UserID || strings.EqualFold(w.Address, wallet.Address) {
			return ErrWalletExists
		}
	}
	r.storage[wallet.ID] = wallet
	return nil
}

func (r *memoryRepository) FindByUser(_ context.Context, userID string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.storage {
		if w.UserID == userID {
			return w, nil
		}
	}
	return Wallet{}, ErrWalletNotFound
}

func (r *memoryRepository) FindByAddress(_ context.Context, address string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.storage {
		if strings.EqualFold(w.Address, address) {
			return w, nil
		}
	}
	return Wallet{}, ErrWalletNotFound
}

func (r *memoryRepository) UpdateBalance(_ context.Context, id string, balance decimal.Decimal, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.storage[id]
	if !ok {
		return ErrWalletNotFound
	}
	w.Balance = balance
	w.UpdatedAt = at
	r.storage[id] = w
	return nil
}
