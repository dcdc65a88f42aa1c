// Package payments executes the money movements behind a confirmed USSD
// dialog: deposits, withdrawals and wallet to wallet transfers.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avanomad/avanomad/internal/chain"
	"github.com/avanomad/avanomad/internal/keys"
	"github.com/avanomad/avanomad/internal/ledger"
	"github.com/avanomad/avanomad/internal/notification"
	"github.com/avanomad/avanomad/internal/payout"
)

var (
	// ErrReverted is returned when a submitted transaction is mined but fails.
	ErrReverted = errors.New("transaction reverted")
	// ErrSignerMismatch is returned when the recovered key does not own the wallet.
	ErrSignerMismatch = errors.New("signing key does not match wallet")
)

// Config holds rates and chain parameters.
type Config struct {
	DepositRate    decimal.Decimal
	WithdrawRate   decimal.Decimal
	GasAmount      decimal.Decimal
	FundGas        bool
	Treasury       string
	LocalCurrency  string
	TokenSymbol    string
	NativeSymbol   string
	TokenDecimals  int32
	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration
}

// Service wires chain submissions to transaction log records.
type Service struct {
	cfg      Config
	chain    chain.Gateway
	keys     *keys.Provider
	ledger   *ledger.Service
	payouts  *payout.Service
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a payment service. An empty treasury defaults to the
// gateway operator address.
func NewService(cfg Config, gw chain.Gateway, provider *keys.Provider, l *ledger.Service, payouts *payout.Service, notifier notification.Notifier, logger *slog.Logger) *Service {
	if cfg.Treasury == "" {
		cfg.Treasury = gw.Operator()
	}
	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = 5 * time.Second
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, chain: gw, keys: provider, ledger: l, payouts: payouts, notifier: notifier, logger: logger}
}

// Account identifies the acting user and their wallet.
type Account struct {
	UserID       string
	Phone        string
	Address      string
	EncryptedKey string
}

// Result describes the outcome of a submitted movement. Status is PENDING
// when no receipt arrived within the receipt timeout.
type Result struct {
	TxHash          string
	Status          ledger.Status
	Amount          decimal.Decimal
	LocalAmount     decimal.Decimal
	GasTxHash       string
	PayoutReference string
}

// DepositQuote converts a local currency amount to tokens.
func (s *Service) DepositQuote(local decimal.Decimal) decimal.Decimal {
	return local.Mul(s.cfg.DepositRate).Round(s.cfg.TokenDecimals)
}

// WithdrawQuote converts a token amount to local currency.
func (s *Service) WithdrawQuote(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.cfg.WithdrawRate).Round(2)
}

// Deposit mints the token equivalent of local into the account wallet,
// funding gas first when enabled. Gas funding failures are logged only.
func (s *Service) Deposit(ctx context.Context, acct Account, local decimal.Decimal) (Result, error) {
	out := Result{LocalAmount: local, Amount: s.DepositQuote(local)}
	if s.cfg.FundGas {
		out.GasTxHash = s.fundGas(ctx, acct)
	}

	s.logger.Info("converting deposit", "local_amount", local.String(), "token_amount", out.Amount.String(), "address", acct.Address)
	record := ledger.Transaction{
		UserID:        acct.UserID,
		Amount:        local,
		Currency:      s.cfg.LocalCurrency,
		Type:          ledger.TypeDeposit,
		WalletAddress: acct.Address,
	}

	hash, err := s.chain.Mint(ctx, acct.Address, out.Amount)
	if err != nil {
		err = fmt.Errorf("failed to mint tokens: %w", err)
		s.recordFailure(ctx, record, err)
		return out, err
	}
	out.TxHash = hash
	out.Status, err = s.settle(ctx, record, hash)
	return out, err
}

func (s *Service) fundGas(ctx context.Context, acct Account) string {
	hash, err := s.chain.FundGas(ctx, acct.Address, s.cfg.GasAmount)
	if err != nil {
		s.logger.Warn("failed to fund gas", "address", acct.Address, "error", err)
		return ""
	}
	record := ledger.Transaction{
		UserID:        acct.UserID,
		Amount:        s.cfg.GasAmount,
		Currency:      s.cfg.NativeSymbol,
		Type:          ledger.TypeGasFunding,
		WalletAddress: acct.Address,
	}
	if _, err := s.settle(ctx, record, hash); err != nil {
		s.logger.Warn("gas funding not confirmed", "tx_hash", hash, "error", err)
	}
	s.logger.Info("funded wallet with gas", "address", acct.Address, "tx_hash", hash)
	return hash
}

// WithdrawInput describes a withdrawal to a bank account.
type WithdrawInput struct {
	Account       Account
	PIN           string
	Amount        decimal.Decimal
	BankCode      string
	AccountNumber string
}

// Withdraw moves tokens to the treasury and, once the transfer is
// confirmed, requests the fiat payout.
func (s *Service) Withdraw(ctx context.Context, in WithdrawInput) (Result, error) {
	out := Result{Amount: in.Amount, LocalAmount: s.WithdrawQuote(in.Amount)}
	record := ledger.Transaction{
		UserID:        in.Account.UserID,
		Amount:        in.Amount,
		Currency:      s.cfg.TokenSymbol,
		Type:          ledger.TypeWithdrawal,
		WalletAddress: in.Account.Address,
		BankCode:      in.BankCode,
		AccountNumber: in.AccountNumber,
	}

	hash, err := s.submit(ctx, in.Account, in.PIN, s.cfg.Treasury, in.Amount)
	if err != nil {
		s.recordFailure(ctx, record, err)
		return out, err
	}
	out.TxHash = hash
	if out.Status, err = s.settle(ctx, record, hash); err != nil || out.Status != ledger.StatusCompleted {
		return out, err
	}

	payoutTx, err := s.requestPayout(ctx, in.Account.UserID, in.Account.Address, out.LocalAmount, in.BankCode, in.AccountNumber)
	if err != nil {
		return out, err
	}
	out.PayoutReference = payoutTx.Reference
	return out, nil
}

func (s *Service) requestPayout(ctx context.Context, userID, address string, local decimal.Decimal, bankCode, accountNumber string) (ledger.Transaction, error) {
	tx, err := s.payouts.Request(ctx, payout.RequestInput{
		UserID:        userID,
		WalletAddress: address,
		Order: payout.Order{
			Amount:        local,
			Currency:      s.cfg.LocalCurrency,
			BankCode:      bankCode,
			AccountNumber: accountNumber,
		},
	})
	if err != nil {
		return tx, err
	}
	s.notify(ctx, notification.Message{
		Kind:        notification.KindWithdrawalInitiated,
		Destination: userID,
		Reference:   tx.Reference,
		Body:        fmt.Sprintf("Withdrawal of %s %s to account %s initiated", local.StringFixed(2), s.cfg.LocalCurrency, accountNumber),
	})
	return tx, nil
}

// TransferInput describes a wallet to wallet transfer.
type TransferInput struct {
	Account          Account
	PIN              string
	Amount           decimal.Decimal
	RecipientUserID  string
	RecipientAddress string
}

// Transfer sends tokens to the recipient wallet and records the linked
// TRANSFER and RECEIVE pair under the transaction hash.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (Result, error) {
	out := Result{Amount: in.Amount}
	sent := ledger.Transaction{
		UserID:                 in.Account.UserID,
		Amount:                 in.Amount,
		Currency:               s.cfg.TokenSymbol,
		Type:                   ledger.TypeTransfer,
		WalletAddress:          in.Account.Address,
		RecipientWalletAddress: in.RecipientAddress,
	}

	hash, err := s.submit(ctx, in.Account, in.PIN, in.RecipientAddress, in.Amount)
	if err != nil {
		s.recordFailure(ctx, sent, err)
		return out, err
	}
	out.TxHash = hash
	if out.Status, err = s.settle(ctx, sent, hash); err != nil {
		return out, err
	}

	received := ledger.Transaction{
		UserID:              in.RecipientUserID,
		Amount:              in.Amount,
		Currency:            s.cfg.TokenSymbol,
		Type:                ledger.TypeReceive,
		WalletAddress:       in.RecipientAddress,
		SenderWalletAddress: in.Account.Address,
	}
	if _, err := s.settle(ctx, received, hash); err != nil {
		return out, err
	}
	if out.Status == ledger.StatusCompleted {
		s.notifyReceived(ctx, in.RecipientUserID, in.Amount, hash)
	}
	return out, nil
}

func (s *Service) notifyReceived(ctx context.Context, userID string, amount decimal.Decimal, hash string) {
	s.notify(ctx, notification.Message{
		Kind:        notification.KindTransferReceived,
		Destination: userID,
		Reference:   hash,
		Body:        fmt.Sprintf("You received %s %s", amount.String(), s.cfg.TokenSymbol),
	})
}

// submit resolves the signer and submits a token transfer.
func (s *Service) submit(ctx context.Context, acct Account, pin, to string, amount decimal.Decimal) (string, error) {
	signer, err := s.keys.Signer(acct.Phone, pin, acct.EncryptedKey)
	if err != nil {
		return "", err
	}
	if !keys.SameAddress(signer.Address(), acct.Address) {
		return "", ErrSignerMismatch
	}
	return s.chain.Transfer(ctx, signer, to, amount)
}

// settle waits for the receipt of hash and records tx accordingly: COMPLETED
// on success, FAILED on revert and PENDING when no receipt arrived in time.
func (s *Service) settle(ctx context.Context, tx ledger.Transaction, hash string) (ledger.Status, error) {
	receipt, err := chain.WaitForReceipt(ctx, s.chain, hash, s.cfg.ReceiptTimeout, s.cfg.ReceiptPoll)
	if err != nil {
		s.logger.Warn("receipt wait interrupted", "tx_hash", hash, "error", err)
		receipt = nil
	}

	tx.Reference = hash
	tx.BlockchainTxHash = hash
	switch {
	case receipt == nil:
		tx.Status = ledger.StatusPending
		s.logger.Warn("transaction not confirmed in time", "type", tx.Type, "tx_hash", hash)
	case receipt.Success:
		tx.Status = ledger.StatusCompleted
		tx.BlockNumber = receipt.BlockNumber
	default:
		tx.Status = ledger.StatusFailed
		tx.BlockNumber = receipt.BlockNumber
		tx.FailureReason = ErrReverted.Error()
	}

	if _, err := s.ledger.Record(ctx, tx); err != nil {
		s.logger.Error("record transaction", "type", tx.Type, "tx_hash", hash, "error", err)
		return tx.Status, fmt.Errorf("record %s: %w", tx.Type, err)
	}
	if tx.Status == ledger.StatusFailed {
		return tx.Status, ErrReverted
	}
	return tx.Status, nil
}

func (s *Service) recordFailure(ctx context.Context, tx ledger.Transaction, cause error) {
	s.logger.Error("transaction failed", "type", tx.Type, "user_id", tx.UserID, "error", cause)
	tx.Status = ledger.StatusFailed
	tx.Reference = s.ledger.FailedReference()
	tx.FailureReason = cause.Error()
	if _, err := s.ledger.Record(ctx, tx); err != nil {
		s.logger.Error("record failed transaction", "type", tx.Type, "error", err)
	}
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", "kind", msg.Kind, "error", err)
	}
}

// ReconcileSummary reports a Reconcile pass.
type ReconcileSummary struct {
	Checked   int
	Completed int
	Failed    int
}

// Reconcile settles PENDING records whose chain transaction has since been
// mined. Confirmed withdrawals get their payout requested here.
func (s *Service) Reconcile(ctx context.Context) (ReconcileSummary, error) {
	pending, err := s.ledger.List(ctx, ledger.Filter{AwaitingReceipt: true})
	if err != nil {
		return ReconcileSummary{}, err
	}
	var summary ReconcileSummary
	for _, tx := range pending {
		summary.Checked++
		receipt, err := s.chain.Receipt(ctx, tx.BlockchainTxHash)
		if err != nil {
			s.logger.Error("receipt lookup", "tx_hash", tx.BlockchainTxHash, "error", err)
			continue
		}
		if receipt == nil {
			continue
		}
		if !receipt.Success {
			if err := s.ledger.Fail(ctx, tx.ID, ErrReverted.Error()); err != nil {
				s.logger.Error("fail transaction", "id", tx.ID, "error", err)
				continue
			}
			summary.Failed++
			continue
		}
		if err := s.ledger.Complete(ctx, tx.ID, receipt.BlockNumber); err != nil {
			s.logger.Error("complete transaction", "id", tx.ID, "error", err)
			continue
		}
		summary.Completed++
		s.logger.Info("transaction confirmed", "type", tx.Type, "tx_hash", tx.BlockchainTxHash, "block", receipt.BlockNumber)

		switch tx.Type {
		case ledger.TypeWithdrawal:
			if tx.AccountNumber == "" {
				continue
			}
			if _, err := s.requestPayout(ctx, tx.UserID, tx.WalletAddress, s.WithdrawQuote(tx.Amount), tx.BankCode, tx.AccountNumber); err != nil {
				s.logger.Error("payout after confirmation", "tx_hash", tx.BlockchainTxHash, "error", err)
			}
		case ledger.TypeReceive:
			s.notifyReceived(ctx, tx.UserID, tx.Amount, tx.BlockchainTxHash)
		}
	}
	return summary, nil
}
