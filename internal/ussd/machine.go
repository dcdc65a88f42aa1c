// Package ussd implements the USSD dialog: a state machine driven by the
// accumulated keypad text of each session.
package ussd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avanomad/avanomad/internal/identity"
	"github.com/avanomad/avanomad/internal/keys"
	"github.com/avanomad/avanomad/internal/ledger"
	"github.com/avanomad/avanomad/internal/payments"
	"github.com/avanomad/avanomad/internal/session"
	"github.com/avanomad/avanomad/internal/wallet"
)

var (
	accountNumberPattern = regexp.MustCompile(`^\d{10}$`)
	phonePattern         = regexp.MustCompile(`^\d{10,15}$`)

	// Plain digits with at most six decimals; no sign, no exponent.
	amountPattern = regexp.MustCompile(`^\d{1,12}(\.\d{1,6})?$`)
)

// Accounts resolves and registers users.
type Accounts interface {
	Lookup(ctx context.Context, phone string) (identity.User, error)
	Register(ctx context.Context, reg identity.Registration) (identity.User, error)
}

// Wallets resolves wallets and reads balances.
type Wallets interface {
	ForUser(ctx context.Context, userID string) (wallet.Wallet, error)
	Open(ctx context.Context, input wallet.OpenInput) (wallet.Wallet, error)
	Balance(ctx context.Context, w wallet.Wallet) (wallet.Balance, error)
}

// Payments executes confirmed movements.
type Payments interface {
	Deposit(ctx context.Context, acct payments.Account, local decimal.Decimal) (payments.Result, error)
	Withdraw(ctx context.Context, in payments.WithdrawInput) (payments.Result, error)
	Transfer(ctx context.Context, in payments.TransferInput) (payments.Result, error)
	WithdrawQuote(amount decimal.Decimal) decimal.Decimal
}

// Pinger checks ledger connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds display settings for the dialog.
type Config struct {
	TokenSymbol   string
	NativeSymbol  string
	LocalCurrency string
	Banks         []Bank
}

// Deps are the collaborators of a Machine.
type Deps struct {
	Accounts Accounts
	Wallets  Wallets
	Payments Payments
	Keys     *keys.Provider
	Chain    Pinger
	Sessions session.Store
	Locker   *session.Locker
	Logger   *slog.Logger
	Now      func() time.Time
}

// Machine answers gateway callbacks.
type Machine struct {
	deps  Deps
	menus menus
}

// NewMachine builds a Machine. Zero Config fields take the service defaults.
func NewMachine(cfg Config, deps Deps) *Machine {
	if cfg.TokenSymbol == "" {
		cfg.TokenSymbol = "USDC.e"
	}
	if cfg.NativeSymbol == "" {
		cfg.NativeSymbol = "AVAX"
	}
	if cfg.LocalCurrency == "" {
		cfg.LocalCurrency = "NGN"
	}
	if len(cfg.Banks) == 0 {
		cfg.Banks = DefaultBanks
	}
	if deps.Locker == nil {
		deps.Locker = session.NewLocker()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Machine{
		deps:  deps,
		menus: menus{token: cfg.TokenSymbol, native: cfg.NativeSymbol, local: cfg.LocalCurrency, banks: cfg.Banks},
	}
}

// Handle runs one dialog step and returns the CON or END reply. It never
// panics; unexpected failures become a generic END reply.
func (m *Machine) Handle(ctx context.Context, req Request) (reply string) {
	unlock := m.deps.Locker.Lock(req.SessionID)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			m.deps.Logger.Error("ussd handler panic", "session_id", req.SessionID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			reply = msgUnexpected
		}
	}()

	m.deps.Logger.Debug("ussd request", "session_id", req.SessionID, "service_code", req.ServiceCode, "text", req.Text)

	sess := m.load(ctx, req)
	sess.Touch(m.deps.Now())

	in := ParseInput(req.Text)
	if _, ok := sess.State.(Main); ok && sess.Account == nil {
		sess.State = CreateAccount{}
	}
	next, reply := m.step(ctx, sess, in)
	sess.State = next

	if err := m.deps.Sessions.Set(ctx, sess); err != nil {
		m.deps.Logger.Error("save session", "session_id", req.SessionID, "error", err)
		return msgUnexpected
	}
	return reply
}

// load returns the stored session or initialises a new one from the
// account bound to the phone number.
func (m *Machine) load(ctx context.Context, req Request) *session.Session {
	sess, err := m.deps.Sessions.Get(ctx, req.SessionID)
	if err == nil {
		return sess
	}
	if !errors.Is(err, session.ErrNotFound) {
		m.deps.Logger.Error("load session", "session_id", req.SessionID, "error", err)
	}

	sess = &session.Session{ID: req.SessionID, PhoneNumber: req.PhoneNumber, State: CreateAccount{}}
	phoneHash := keys.HashPhone(req.PhoneNumber)

	user, err := m.deps.Accounts.Lookup(ctx, req.PhoneNumber)
	if err != nil {
		if !errors.Is(err, identity.ErrUserNotFound) {
			m.deps.Logger.Error("initialise session", "phone_hash", phoneHash, "error", err)
		}
		return sess
	}

	w, err := m.deps.Wallets.ForUser(ctx, user.ID)
	if errors.Is(err, wallet.ErrWalletNotFound) && user.WalletAddress != "" {
		m.deps.Logger.Warn("no wallet found for user", "user_id", user.ID)
		w, err = m.deps.Wallets.Open(ctx, wallet.OpenInput{UserID: user.ID, Address: user.WalletAddress})
		if err == nil {
			m.deps.Logger.Info("created recovery wallet", "user_id", user.ID)
		}
	}
	if err != nil {
		m.deps.Logger.Error("retrieve wallet", "user_id", user.ID, "error", err)
		return sess
	}

	sess.Account = accountOf(user.ID, w)
	sess.State = Main{}
	return sess
}

func accountOf(userID string, w wallet.Wallet) *session.Account {
	return &session.Account{UserID: userID, WalletID: w.ID, Address: w.Address, EncryptedKey: w.EncryptedKey}
}

func (m *Machine) step(ctx context.Context, sess *session.Session, in Input) (session.State, string) {
	switch st := sess.State.(type) {
	case CreateAccount:
		return m.createAccount(in)
	case SetPIN:
		return m.setPIN(ctx, sess, in)
	case Main:
		return m.mainMenu(in)
	case CheckBalance:
		return m.checkBalance(ctx, sess, in)
	case Deposit:
		return m.deposit(in)
	case Withdraw:
		return m.withdraw(in)
	case Transfer:
		return m.transfer(ctx, st, in)
	case EnterPIN:
		return m.enterPIN(sess, st, in)
	case ConfirmTransaction:
		return m.confirmTransaction(ctx, sess, st, in)
	case EnterAccountNumber:
		return m.enterAccountNumber(st, in)
	case ConfirmWithdrawal:
		return m.confirmWithdrawal(ctx, sess, st, in)
	default:
		m.deps.Logger.Error("unknown session state", "session_id", sess.ID, "state", fmt.Sprintf("%T", st))
		return Main{}, msgUnexpected
	}
}

func (m *Machine) createAccount(in Input) (session.State, string) {
	if in.Current == "1" {
		return SetPIN{}, m.menus.setPIN()
	}
	return CreateAccount{}, m.menus.createAccount()
}

func (m *Machine) setPIN(ctx context.Context, sess *session.Session, in Input) (session.State, string) {
	if in.Depth < 2 {
		return SetPIN{}, m.menus.enterNewPIN()
	}
	pin := in.Current
	if !keys.ValidPIN(pin) {
		return SetPIN{}, m.menus.invalidPIN()
	}

	id, err := m.deps.Keys.Derive(sess.PhoneNumber, pin)
	if err != nil {
		m.deps.Logger.Error("derive wallet", "error", err)
		return CreateAccount{}, m.menus.accountFailed()
	}
	m.deps.Logger.Info("created wallet address", "address", id.Address())

	user, err := m.deps.Accounts.Register(ctx, identity.Registration{Phone: sess.PhoneNumber, PIN: pin, WalletAddress: id.Address()})
	switch {
	case errors.Is(err, identity.ErrUserExists):
		// A double submit of the same PIN lands here; any other PIN does not own the account.
		if !keys.SameAddress(user.WalletAddress, id.Address()) {
			return CreateAccount{}, m.menus.accountTaken()
		}
	case err != nil:
		m.deps.Logger.Error("error creating account", "error", err)
		return CreateAccount{}, m.menus.accountFailed()
	}

	encrypted, err := m.deps.Keys.Encrypt(id, pin)
	if err != nil {
		m.deps.Logger.Error("encrypt wallet key", "user_id", user.ID, "error", err)
		return CreateAccount{}, m.menus.accountFailed()
	}
	w, err := m.deps.Wallets.Open(ctx, wallet.OpenInput{UserID: user.ID, Address: id.Address(), EncryptedKey: encrypted})
	if err != nil {
		m.deps.Logger.Error("open wallet", "user_id", user.ID, "error", err)
		return CreateAccount{}, m.menus.accountFailed()
	}
	m.deps.Logger.Info("wallet saved", "wallet_id", w.ID, "user_id", user.ID)

	sess.Account = accountOf(user.ID, w)
	connected := m.deps.Chain.Ping(ctx) == nil
	return Main{}, m.menus.accountCreated(w.Address, connected)
}

func (m *Machine) mainMenu(in Input) (session.State, string) {
	if in.Empty() {
		return Main{}, m.menus.main()
	}
	switch in.Current {
	case "1":
		return CheckBalance{}, m.menus.balancePIN()
	case "2":
		return Deposit{}, m.menus.depositAmount()
	case "3":
		return Withdraw{}, m.menus.withdrawAmount()
	case "4":
		return Transfer{}, m.menus.recipientPhone()
	default:
		return Main{}, m.menus.invalidOption()
	}
}

func (m *Machine) checkBalance(ctx context.Context, sess *session.Session, in Input) (session.State, string) {
	if in.Depth < 2 {
		return CheckBalance{}, m.menus.balancePIN()
	}
	if !keys.ValidPIN(in.Current) {
		return CheckBalance{}, m.menus.invalidPIN()
	}
	if !m.verifyPIN(sess, in.Current) {
		return Main{}, m.menus.incorrectPIN()
	}

	acct := sess.Account
	bal, err := m.deps.Wallets.Balance(ctx, wallet.Wallet{ID: acct.WalletID, UserID: acct.UserID, Address: acct.Address})
	if err != nil {
		m.deps.Logger.Error("error checking balance", "phone_hash", keys.HashPhone(sess.PhoneNumber), "error", err)
		return Main{}, m.menus.balanceFailed()
	}
	token := bal.Token.String()
	if bal.TokenErr != nil {
		m.deps.Logger.Warn("error getting token balance", "address", acct.Address, "error", bal.TokenErr)
		token = "0.0"
	}
	m.deps.Logger.Info("balance checked", "phone_hash", keys.HashPhone(sess.PhoneNumber))
	return Main{}, m.menus.balance(bal.Native.String(), token, acct.Address)
}

// verifyPIN reports whether pin derives the session's wallet address.
func (m *Machine) verifyPIN(sess *session.Session, pin string) bool {
	if sess.Account == nil {
		return false
	}
	id, err := m.deps.Keys.Derive(sess.PhoneNumber, pin)
	if err != nil {
		return false
	}
	return keys.SameAddress(id.Address(), sess.Account.Address)
}

func parseAmount(token string) (decimal.Decimal, bool) {
	if !amountPattern.MatchString(token) {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(token)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}

func (m *Machine) deposit(in Input) (session.State, string) {
	if in.Depth < 2 {
		return Deposit{}, m.menus.depositAmount()
	}
	amount, ok := parseAmount(in.Current)
	if !ok {
		return Deposit{}, m.menus.invalidAmount()
	}
	return EnterPIN{
		Next:    StepConfirmTransaction,
		Pending: Pending{Type: ledger.TypeDeposit, Amount: amount},
	}, m.menus.depositPIN()
}

func (m *Machine) withdraw(in Input) (session.State, string) {
	if in.Depth < 2 {
		return Withdraw{}, m.menus.withdrawAmount()
	}
	amount, ok := parseAmount(in.Current)
	if !ok {
		return Withdraw{}, m.menus.invalidAmount()
	}
	return EnterPIN{
		Next:    StepEnterBankDetails,
		Pending: Pending{Type: ledger.TypeWithdrawal, Amount: amount, LocalAmount: m.deps.Payments.WithdrawQuote(amount)},
	}, m.menus.withdrawPIN()
}

func (m *Machine) transfer(ctx context.Context, st Transfer, in Input) (session.State, string) {
	if st.Recipient != nil {
		amount, ok := parseAmount(in.Current)
		if !ok {
			return st, m.menus.invalidAmount()
		}
		return EnterPIN{
			Next:    StepConfirmTransaction,
			Pending: Pending{Type: ledger.TypeTransfer, Amount: amount, Recipient: st.Recipient},
		}, m.menus.transferPIN()
	}

	if in.Depth < 2 {
		return st, m.menus.recipientPhone()
	}
	phone := in.Current
	if !phonePattern.MatchString(phone) {
		return st, m.menus.invalidPhone()
	}

	user, err := m.deps.Accounts.Lookup(ctx, phone)
	if errors.Is(err, identity.ErrUserNotFound) {
		return Main{}, m.menus.recipientNotFound()
	}
	if err != nil {
		m.deps.Logger.Error("error looking up recipient", "error", err)
		return Main{}, m.menus.recipientLookupFailed()
	}
	w, err := m.deps.Wallets.ForUser(ctx, user.ID)
	if errors.Is(err, wallet.ErrWalletNotFound) {
		return Main{}, m.menus.recipientWalletNotFound()
	}
	if err != nil {
		m.deps.Logger.Error("error looking up recipient wallet", "error", err)
		return Main{}, m.menus.recipientLookupFailed()
	}
	return Transfer{Recipient: &Recipient{UserID: user.ID, Address: w.Address, Phone: phone}}, m.menus.transferAmount()
}

func (m *Machine) enterPIN(sess *session.Session, st EnterPIN, in Input) (session.State, string) {
	pin := in.Current
	if !keys.ValidPIN(pin) {
		return st, m.menus.invalidPIN()
	}
	if !m.verifyPIN(sess, pin) {
		return Main{}, m.menus.incorrectPIN()
	}

	sealed, err := m.deps.Keys.SealPIN(pin, sess.ID)
	if err != nil {
		m.deps.Logger.Error("error sealing pin", "session_id", sess.ID, "error", err)
		return Main{}, msgUnexpected
	}

	if st.Next == StepEnterBankDetails {
		return EnterAccountNumber{Pending: st.Pending, SealedPIN: sealed}, m.menus.banksList()
	}
	next := ConfirmTransaction{Pending: st.Pending, SealedPIN: sealed}
	if st.Pending.Type == ledger.TypeTransfer && st.Pending.Recipient != nil {
		return next, m.menus.confirmTransfer(st.Pending.Amount, st.Pending.Recipient.Phone)
	}
	return next, m.menus.confirmDeposit(st.Pending.Amount)
}

func (m *Machine) openPIN(sess *session.Session, sealed string) (string, bool) {
	pin, err := m.deps.Keys.OpenPIN(sealed, sess.ID)
	if err != nil {
		m.deps.Logger.Warn("error opening sealed pin", "session_id", sess.ID, "error", err)
		return "", false
	}
	return pin, true
}

func (m *Machine) payer(sess *session.Session) payments.Account {
	a := sess.Account
	return payments.Account{UserID: a.UserID, Phone: sess.PhoneNumber, Address: a.Address, EncryptedKey: a.EncryptedKey}
}

func (m *Machine) confirmTransaction(ctx context.Context, sess *session.Session, st ConfirmTransaction, in Input) (session.State, string) {
	if in.Current != "1" {
		return Main{}, m.menus.cancelled()
	}
	pin, ok := m.openPIN(sess, st.SealedPIN)
	if !ok {
		return Main{}, msgUnexpected
	}
	p := st.Pending

	switch p.Type {
	case ledger.TypeDeposit:
		res, err := m.deps.Payments.Deposit(ctx, m.payer(sess), p.Amount)
		if err != nil {
			m.deps.Logger.Error("error processing deposit", "user_id", sess.Account.UserID, "error", err)
			return Main{}, m.menus.depositFailed(err)
		}
		return Main{}, m.menus.depositDone(res.Amount, res.TxHash, res.Status == ledger.StatusCompleted)

	case ledger.TypeTransfer:
		if p.Recipient == nil {
			return Main{}, msgUnexpected
		}
		res, err := m.deps.Payments.Transfer(ctx, payments.TransferInput{
			Account:          m.payer(sess),
			PIN:              pin,
			Amount:           p.Amount,
			RecipientUserID:  p.Recipient.UserID,
			RecipientAddress: p.Recipient.Address,
		})
		if err != nil {
			m.deps.Logger.Error("error processing transfer", "user_id", sess.Account.UserID, "error", err)
			return Main{}, m.menus.transferFailed(err)
		}
		return Main{}, m.menus.transferDone(p.Amount, p.Recipient.Phone, res.TxHash, res.Status == ledger.StatusCompleted)
	}
	return Main{}, msgUnexpected
}

func (m *Machine) enterAccountNumber(st EnterAccountNumber, in Input) (session.State, string) {
	code, ok := bankCode(m.menus.banks, in.Current)
	if !ok {
		return Main{}, m.menus.invalidBank()
	}
	return ConfirmWithdrawal{Pending: st.Pending, SealedPIN: st.SealedPIN, BankCode: code}, m.menus.accountNumber()
}

func (m *Machine) confirmWithdrawal(ctx context.Context, sess *session.Session, st ConfirmWithdrawal, in Input) (session.State, string) {
	p := st.Pending
	if st.AccountNumber == "" {
		if !accountNumberPattern.MatchString(in.Current) {
			return st, m.menus.invalidAccountNumber()
		}
		st.AccountNumber = in.Current
		return st, m.menus.confirmWithdrawal(p.Amount, p.LocalAmount, st.AccountNumber)
	}

	if in.Current != "1" {
		return Main{}, m.menus.withdrawalCancelled()
	}
	pin, ok := m.openPIN(sess, st.SealedPIN)
	if !ok {
		return Main{}, msgUnexpected
	}
	res, err := m.deps.Payments.Withdraw(ctx, payments.WithdrawInput{
		Account:       m.payer(sess),
		PIN:           pin,
		Amount:        p.Amount,
		BankCode:      st.BankCode,
		AccountNumber: st.AccountNumber,
	})
	if err != nil {
		m.deps.Logger.Error("error processing withdrawal", "user_id", sess.Account.UserID, "error", err)
		return Main{}, m.menus.withdrawalFailed(err)
	}
	if res.Status != ledger.StatusCompleted {
		return Main{}, m.menus.withdrawalSubmitted(p.Amount, res.LocalAmount, res.TxHash)
	}
	return Main{}, m.menus.withdrawalInitiated(p.Amount, res.LocalAmount, st.AccountNumber, res.PayoutReference)
}
