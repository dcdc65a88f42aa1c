package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/avanomad/avanomad/internal/keys"
)

// Simulated is an in-process ledger with an unlimited faucet. Transfers must
// carry a valid signature from the sending identity.
type Simulated struct {
	mu       sync.RWMutex
	operator common.Address
	tokens   map[common.Address]decimal.Decimal
	native   map[common.Address]decimal.Decimal
	receipts map[string]Receipt
	held     map[string]Receipt
	block    uint64
	nonce    uint64

	holdReceipts bool
	revertNext   bool
	failNext     error
	offline      bool
}

// NewSimulated creates a simulated chain whose faucet is operator.
func NewSimulated(operator string) *Simulated {
	return &Simulated{
		operator: common.HexToAddress(operator),
		tokens:   make(map[common.Address]decimal.Decimal),
		native:   make(map[common.Address]decimal.Decimal),
		receipts: make(map[string]Receipt),
		held:     make(map[string]Receipt),
	}
}

func (s *Simulated) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.offline {
		return fmt.Errorf("simulated chain offline")
	}
	return nil
}

func (s *Simulated) Operator() string { return s.operator.Hex() }

func (s *Simulated) NativeBalance(_ context.Context, address string) (decimal.Decimal, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.native[addr], nil
}

func (s *Simulated) TokenBalance(_ context.Context, address string) (decimal.Decimal, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[addr], nil
}

func (s *Simulated) Transfer(_ context.Context, from *keys.Identity, to string, amount decimal.Decimal) (string, error) {
	if err := checkAmount(amount); err != nil {
		return "", err
	}
	dst, err := parseAddress(to)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return "", err
	}

	payload := []byte(fmt.Sprintf("transfer:%s:%s:%s:%d", from.Address(), dst.Hex(), amount.String(), s.nonce))
	sig, err := from.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("sign transfer: %w", err)
	}
	signer, err := keys.RecoverAddress(payload, sig)
	if err != nil || !keys.SameAddress(signer, from.Address()) {
		return "", fmt.Errorf("transfer signature rejected")
	}

	src := from.Account()
	if s.tokens[src].LessThan(amount) {
		return "", ErrInsufficientFunds
	}
	if s.takeRevert() {
		return s.record(payload, false), nil
	}
	s.tokens[src] = s.tokens[src].Sub(amount)
	s.tokens[dst] = s.tokens[dst].Add(amount)
	return s.record(payload, true), nil
}

func (s *Simulated) Mint(_ context.Context, to string, amount decimal.Decimal) (string, error) {
	if err := checkAmount(amount); err != nil {
		return "", err
	}
	dst, err := parseAddress(to)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return "", err
	}
	payload := []byte(fmt.Sprintf("mint:%s:%s:%d", dst.Hex(), amount.String(), s.nonce))
	if s.takeRevert() {
		return s.record(payload, false), nil
	}
	s.tokens[dst] = s.tokens[dst].Add(amount)
	return s.record(payload, true), nil
}

func (s *Simulated) FundGas(_ context.Context, to string, amount decimal.Decimal) (string, error) {
	if err := checkAmount(amount); err != nil {
		return "", err
	}
	dst, err := parseAddress(to)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return "", err
	}
	payload := []byte(fmt.Sprintf("gas:%s:%s:%d", dst.Hex(), amount.String(), s.nonce))
	s.native[dst] = s.native[dst].Add(amount)
	return s.record(payload, true), nil
}

func (s *Simulated) Receipt(_ context.Context, txHash string) (*Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[strings.ToLower(txHash)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// record must be called with mu held.
func (s *Simulated) record(payload []byte, success bool) string {
	s.nonce++
	s.block++
	hash := crypto.Keccak256Hash(payload).Hex()
	r := Receipt{TxHash: hash, BlockNumber: s.block, Success: success}
	if s.holdReceipts {
		s.held[hash] = r
	} else {
		s.receipts[hash] = r
	}
	return hash
}

func (s *Simulated) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *Simulated) takeRevert() bool {
	revert := s.revertNext
	s.revertNext = false
	return revert
}

func parseAddress(address string) (common.Address, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return common.HexToAddress(address), nil
}
