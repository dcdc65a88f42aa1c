package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

type inMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Transaction
	// refs indexes reference+type for uniqueness.
	refs map[string]string
	seq  map[string]int
	next int
}

// NewInMemory creates a concurrency-safe in-memory repository useful for unit tests.
func NewInMemory() Repository {
	return &inMemoryRepository{
		records: make(map[string]Transaction),
		refs:    make(map[string]string),
		seq:     make(map[string]int),
	}
}

func refKey(reference string, t Type) string { return string(t) + ":" + reference }

func (r *inMemoryRepository) Create(_ context.Context, tx Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := refKey(tx.Reference, tx.Type)
	if _, exists := r.refs[key]; exists {
		return ErrDuplicateReference
	}
	r.refs[key] = tx.ID
	r.records[tx.ID] = tx
	r.next++
	r.seq[tx.ID] = r.next
	return nil
}

func (r *inMemoryRepository) Get(_ context.Context, id string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.records[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return tx, nil
}

func (r *inMemoryRepository) FindByReference(_ context.Context, reference string) ([]Transaction, error) {
	return r.collect(func(tx Transaction) bool { return tx.Reference == reference }, 0), nil
}

func (r *inMemoryRepository) List(_ context.Context, filter Filter) ([]Transaction, error) {
	return r.collect(filter.Matches, filter.Limit), nil
}

func (r *inMemoryRepository) Complete(_ context.Context, id string, blockNumber uint64, at time.Time) error {
	return r.transition(id, func(tx *Transaction) {
		tx.Status = StatusCompleted
		if blockNumber > 0 {
			tx.BlockNumber = blockNumber
		}
		tx.UpdatedAt = at
	})
}

func (r *inMemoryRepository) Fail(_ context.Context, id, reason string, at time.Time) error {
	return r.transition(id, func(tx *Transaction) {
		tx.Status = StatusFailed
		tx.FailureReason = reason
		tx.UpdatedAt = at
	})
}

func (r *inMemoryRepository) SetSettlementHash(_ context.Context, id, hash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.records[id]
	if !ok {
		return ErrTransactionNotFound
	}
	if tx.TxHash != "" {
		return ErrAlreadySettled
	}
	tx.TxHash = hash
	tx.UpdatedAt = at
	r.records[id] = tx
	return nil
}

func (r *inMemoryRepository) transition(id string, apply func(*Transaction)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.records[id]
	if !ok {
		return ErrTransactionNotFound
	}
	if tx.Status != StatusPending {
		return ErrInvalidTransition
	}
	apply(&tx)
	r.records[id] = tx
	return nil
}

func (r *inMemoryRepository) collect(match func(Transaction) bool, limit int) []Transaction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Transaction, 0)
	for _, tx := range r.records {
		if match(tx) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.seq[out[i].ID] < r.seq[out[j].ID] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
