package ussd

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	prefixCon = "CON "
	prefixEnd = "END "

	msgUnexpected = prefixEnd + "An unexpected error occurred. Please try again later."
)

func con(lines ...string) string { return prefixCon + strings.Join(lines, "\n") }
func end(lines ...string) string { return prefixEnd + strings.Join(lines, "\n") }

// menus renders every dialog screen. It holds only display settings.
type menus struct {
	token  string
	native string
	local  string
	banks  []Bank
}

var mainOptions = []string{
	"1. Check Balance",
	"2. Deposit Funds",
	"3. Withdraw Funds",
	"4. Transfer Funds",
}

func (menus) createAccount() string {
	return con("Welcome to Avanomad", "You need to create an account first", "1. Create account")
}

func (menus) setPIN() string      { return con("Please set a 4-digit PIN for your account:") }
func (menus) enterNewPIN() string { return con("Please enter a 4-digit PIN:") }
func (menus) invalidPIN() string  { return con("Invalid PIN. Please enter a 4-digit PIN:") }

func (menus) accountCreated(address string, connected bool) string {
	status := "FAILED ✗"
	if connected {
		status = "VERIFIED ✓"
	}
	return end(
		"Account created successfully!",
		"Your wallet address: "+address,
		"Blockchain connection: "+status,
		"Remember your PIN - it's needed to access your wallet!",
	)
}

func (menus) accountFailed() string { return end("Failed to create account. Please try again.") }

func (menus) accountTaken() string {
	return end("An account already exists for this number.", "Dial again and enter your existing PIN.")
}

func (menus) main() string {
	return con(append([]string{"Welcome back to Avanomad"}, mainOptions...)...)
}

func (menus) invalidOption() string {
	return con(append([]string{"Invalid option. Please try again."}, mainOptions...)...)
}

func (menus) balancePIN() string { return con("Enter PIN to check balance:") }

func (m menus) balance(native, token, address string) string {
	return end(
		"Your balance:",
		fmt.Sprintf("%s: %s", m.native, native),
		fmt.Sprintf("%s: %s", m.token, token),
		"Address: "+address,
	)
}

func (menus) balanceFailed() string {
	return end("An error occurred while checking your balance. Please try again.")
}

func (menus) incorrectPIN() string { return end("Incorrect PIN. Please try again.") }

func (menus) depositAmount() string { return con("Enter amount to deposit (in local currency):") }

func (m menus) withdrawAmount() string {
	return con(fmt.Sprintf("Enter amount to withdraw (in %s):", m.token))
}

func (m menus) transferAmount() string {
	return con(fmt.Sprintf("Enter amount to transfer (in %s):", m.token))
}

func (menus) invalidAmount() string { return con("Invalid amount. Please enter a valid amount:") }

func (menus) depositPIN() string  { return con("Enter your PIN to confirm deposit:") }
func (menus) withdrawPIN() string { return con("Enter your PIN to proceed:") }
func (menus) transferPIN() string { return con("Enter your PIN to confirm transfer:") }

func (menus) recipientPhone() string { return con("Enter recipient phone number:") }

func (menus) invalidPhone() string {
	return con("Invalid phone number. Please enter a valid phone number:")
}

func (menus) recipientNotFound() string {
	return end("Recipient not found. They need to create an Avanomad account first.")
}

func (menus) recipientWalletNotFound() string {
	return end("Recipient wallet not found. Please try again later.")
}

func (menus) recipientLookupFailed() string {
	return end("An error occurred while finding the recipient. Please try again.")
}

func (menus) confirmDeposit(amount decimal.Decimal) string {
	return con(fmt.Sprintf("Confirm deposit of %s to your wallet:", amount), "1. Confirm", "2. Cancel")
}

func (m menus) confirmTransfer(amount decimal.Decimal, phone string) string {
	return con(fmt.Sprintf("Confirm transfer of %s %s to %s:", amount, m.token, phone), "1. Confirm", "2. Cancel")
}

func (m menus) banksList() string {
	lines := []string{"Select your bank:"}
	for _, b := range m.banks {
		lines = append(lines, fmt.Sprintf("%s. %s", b.Choice, b.Name))
	}
	return con(append(lines, "9. More banks")...)
}

func (menus) invalidBank() string { return end("Invalid bank selection. Please try again.") }

func (menus) accountNumber() string { return con("Enter your account number:") }

func (menus) invalidAccountNumber() string {
	return con("Invalid account number. Please enter a 10-digit account number:")
}

func (m menus) quote(amount, local decimal.Decimal) string {
	return fmt.Sprintf("%s %s (≈%s %s)", amount, m.token, local.StringFixed(2), m.local)
}

func (m menus) confirmWithdrawal(amount, local decimal.Decimal, account string) string {
	return con("Confirm withdrawal of "+m.quote(amount, local), "to Account: "+account, "1. Confirm", "2. Cancel")
}

func (m menus) withdrawalInitiated(amount, local decimal.Decimal, account, reference string) string {
	return end(
		"Withdrawal initiated successfully!",
		"Amount: "+m.quote(amount, local),
		"Account: "+account,
		"Reference: "+reference,
		"Your bank account will be credited shortly.",
	)
}

func (m menus) withdrawalSubmitted(amount, local decimal.Decimal, hash string) string {
	return end(
		"Withdrawal submitted!",
		"Amount: "+m.quote(amount, local),
		"Transaction: "+hash,
		"Your payout will start once the transfer is confirmed.",
	)
}

func (menus) withdrawalFailed(err error) string {
	return end("Withdrawal failed. Please try again later.", "Error: "+err.Error())
}

func (menus) withdrawalCancelled() string { return end("Withdrawal cancelled.") }

func (m menus) depositDone(amount decimal.Decimal, hash string, confirmed bool) string {
	head := "Deposit successful!"
	if !confirmed {
		head = "Deposit submitted!"
	}
	lines := []string{head, fmt.Sprintf("Amount: %s %s", amount, m.token), "Transaction: " + hash}
	if !confirmed {
		lines = append(lines, "Confirmation pending.")
	}
	return end(lines...)
}

func (menus) depositFailed(err error) string {
	return end("Deposit failed. Please try again later.", "Error: "+err.Error())
}

func (m menus) transferDone(amount decimal.Decimal, phone, hash string, confirmed bool) string {
	head := "Transfer successful!"
	if !confirmed {
		head = "Transfer submitted!"
	}
	lines := []string{head, fmt.Sprintf("Amount: %s %s", amount, m.token), "To: " + maskPhone(phone), "Transaction: " + hash}
	if !confirmed {
		lines = append(lines, "Confirmation pending.")
	}
	return end(lines...)
}

func (menus) transferFailed(err error) string {
	return end("Transfer failed. Please try again later.", "Error: "+err.Error())
}

func (menus) cancelled() string { return end("Transaction cancelled.") }

func maskPhone(phone string) string {
	if len(phone) < 6 {
		return phone
	}
	return phone[:4] + "****" + phone[len(phone)-2:]
}
