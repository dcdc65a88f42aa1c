// Package funding settles completed deposits: each DEPOSIT record that has no
// settlement hash yet is credited and stamped with one.
package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/avanomad/avanomad/internal/chain"
	"github.com/avanomad/avanomad/internal/ledger"
	"github.com/avanomad/avanomad/internal/wallet"
)

// Mode selects how deposits are settled.
type Mode string

const (
	// ModeSimulate stamps a synthetic hash without touching the chain.
	ModeSimulate Mode = "simulate"
	// ModeChain mints the settlement amount to the depositor's wallet.
	ModeChain Mode = "chain"
)

// Config controls the processor.
type Config struct {
	Mode           Mode
	SettlementRate decimal.Decimal
	TokenDecimals  int32
}

// Summary reports one processing run.
type Summary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Processor settles unsettled deposits. Runs are serialised so the scheduled
// tick and the manual trigger never work on the same record twice.
type Processor struct {
	cfg     Config
	ledger  *ledger.Service
	wallets *wallet.Service
	chain   chain.Gateway
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewProcessor builds a deposit processor.
func NewProcessor(cfg Config, l *ledger.Service, wallets *wallet.Service, gw chain.Gateway, logger *slog.Logger) (*Processor, error) {
	switch cfg.Mode {
	case ModeSimulate:
	case ModeChain:
		if gw == nil || wallets == nil {
			return nil, errors.New("chain mode requires a gateway and wallet service")
		}
	default:
		return nil, fmt.Errorf("unknown processor mode %q", cfg.Mode)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{cfg: cfg, ledger: l, wallets: wallets, chain: gw, logger: logger, now: time.Now}, nil
}

// Run settles every COMPLETED deposit that has no settlement hash.
func (p *Processor) Run(ctx context.Context) (Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending, err := p.ledger.List(ctx, ledger.Filter{Type: ledger.TypeDeposit, Status: ledger.StatusCompleted, Unsettled: true})
	if err != nil {
		return Summary{}, err
	}
	var summary Summary
	if len(pending) == 0 {
		p.logger.Debug("no pending deposits to process")
		return summary, nil
	}
	p.logger.Info("processing pending deposits", "count", len(pending), "mode", p.cfg.Mode)

	for _, deposit := range pending {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		hash, err := p.settlementHash(ctx, deposit)
		if err == nil {
			err = p.ledger.Settle(ctx, deposit.ID, hash)
		}
		if errors.Is(err, ledger.ErrAlreadySettled) {
			continue
		}
		if err != nil {
			summary.Failed++
			p.logger.Error("process deposit", "id", deposit.ID, "error", err)
			continue
		}
		summary.Processed++
		p.logger.Info("processed deposit", "id", deposit.ID, "tx_hash", hash)
	}
	return summary, nil
}

func (p *Processor) settlementHash(ctx context.Context, deposit ledger.Transaction) (string, error) {
	if p.cfg.Mode == ModeSimulate {
		seed := fmt.Sprintf("deposit-%s-%d", deposit.ID, p.now().UnixMilli())
		return crypto.Keccak256Hash([]byte(seed)).Hex(), nil
	}

	// Deposits minted during the dialog already carry their chain hash.
	if deposit.BlockchainTxHash != "" {
		return deposit.BlockchainTxHash, nil
	}

	address := deposit.WalletAddress
	if address == "" {
		w, err := p.wallets.ForUser(ctx, deposit.UserID)
		if err != nil {
			return "", fmt.Errorf("wallet for user %s: %w", deposit.UserID, err)
		}
		address = w.Address
	}
	amount := deposit.Amount.Mul(p.cfg.SettlementRate).Round(p.cfg.TokenDecimals)
	p.logger.Info("converting deposit", "id", deposit.ID, "local_amount", deposit.Amount.String(), "token_amount", amount.String())
	return p.chain.Mint(ctx, address, amount)
}
