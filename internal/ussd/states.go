package ussd

import (
	"github.com/shopspring/decimal"

	"github.com/avanomad/avanomad/internal/ledger"
	"github.com/avanomad/avanomad/internal/session"
)

// State names as persisted in the session store.
const (
	NameCreateAccount      = "CREATE_ACCOUNT"
	NameSetPIN             = "SET_PIN"
	NameMain               = "MAIN"
	NameCheckBalance       = "CHECK_BALANCE"
	NameDeposit            = "DEPOSIT"
	NameWithdraw           = "WITHDRAW"
	NameTransfer           = "TRANSFER"
	NameEnterPIN           = "ENTER_PIN"
	NameConfirmTransaction = "CONFIRM_TRANSACTION"
	NameEnterAccountNumber = "ENTER_ACCOUNT_NUMBER"
	NameConfirmWithdrawal  = "CONFIRM_WITHDRAWAL"
)

func init() {
	session.Register[CreateAccount](NameCreateAccount)
	session.Register[SetPIN](NameSetPIN)
	session.Register[Main](NameMain)
	session.Register[CheckBalance](NameCheckBalance)
	session.Register[Deposit](NameDeposit)
	session.Register[Withdraw](NameWithdraw)
	session.Register[Transfer](NameTransfer)
	session.Register[EnterPIN](NameEnterPIN)
	session.Register[ConfirmTransaction](NameConfirmTransaction)
	session.Register[EnterAccountNumber](NameEnterAccountNumber)
	session.Register[ConfirmWithdrawal](NameConfirmWithdrawal)
}

// Recipient is a resolved transfer destination.
type Recipient struct {
	UserID  string `json:"user_id"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// Pending is the movement being assembled by the dialog.
type Pending struct {
	Type        ledger.Type     `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	LocalAmount decimal.Decimal `json:"local_amount"`
	Recipient   *Recipient      `json:"recipient,omitempty"`
}

// Step is where ENTER_PIN continues after a verified PIN. The bank details
// step shows the bank list straight away and waits in ENTER_ACCOUNT_NUMBER.
type Step string

const (
	StepConfirmTransaction Step = NameConfirmTransaction
	StepEnterBankDetails   Step = "ENTER_BANK_DETAILS"
)

type (
	CreateAccount struct{}
	SetPIN        struct{}
	Main          struct{}
	CheckBalance  struct{}
	Deposit       struct{}
	Withdraw      struct{}

	// Transfer holds the recipient once the phone number is resolved.
	Transfer struct {
		Recipient *Recipient `json:"recipient,omitempty"`
	}

	EnterPIN struct {
		Next    Step    `json:"next"`
		Pending Pending `json:"pending"`
	}

	// The states below are only reachable with a verified PIN. They carry it
	// sealed to the session id (keys.Provider.SealPIN), never in clear.

	ConfirmTransaction struct {
		Pending   Pending `json:"pending"`
		SealedPIN string  `json:"sealed_pin"`
	}

	EnterAccountNumber struct {
		Pending   Pending `json:"pending"`
		SealedPIN string  `json:"sealed_pin"`
	}

	ConfirmWithdrawal struct {
		Pending       Pending `json:"pending"`
		SealedPIN     string  `json:"sealed_pin"`
		BankCode      string  `json:"bank_code"`
		AccountNumber string  `json:"account_number,omitempty"`
	}
)

func (CreateAccount) StateName() string      { return NameCreateAccount }
func (SetPIN) StateName() string             { return NameSetPIN }
func (Main) StateName() string               { return NameMain }
func (CheckBalance) StateName() string       { return NameCheckBalance }
func (Deposit) StateName() string            { return NameDeposit }
func (Withdraw) StateName() string           { return NameWithdraw }
func (Transfer) StateName() string           { return NameTransfer }
func (EnterPIN) StateName() string           { return NameEnterPIN }
func (ConfirmTransaction) StateName() string { return NameConfirmTransaction }
func (EnterAccountNumber) StateName() string { return NameEnterAccountNumber }
func (ConfirmWithdrawal) StateName() string  { return NameConfirmWithdrawal }
