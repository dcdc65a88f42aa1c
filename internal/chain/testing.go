package chain

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// SeedTokenBalance sets an address's token balance on a simulated chain.
func SeedTokenBalance(s *Simulated, address string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[common.HexToAddress(address)] = amount
}

// FailNext makes the next submitting call on s return err.
func FailNext(s *Simulated, err error) {
	if err == nil {
		err = errors.New("simulated failure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// RevertNext makes the next mint or transfer mine with a failed status.
func RevertNext(s *Simulated) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revertNext = true
}

// HoldReceipts keeps new receipts unpublished until ReleaseReceipts.
func HoldReceipts(s *Simulated) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdReceipts = true
}

// ReleaseReceipts publishes every held receipt.
func ReleaseReceipts(s *Simulated) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdReceipts = false
	for hash, r := range s.held {
		s.receipts[hash] = r
	}
	s.held = make(map[string]Receipt)
}

// SetOffline toggles Ping failures.
func SetOffline(s *Simulated, offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}
