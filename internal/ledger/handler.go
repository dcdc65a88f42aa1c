package ledger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const maxListLimit = 500

// Handler exposes read-only access to the transaction log for operators.
type Handler struct {
	service *Service
}

// NewHandler builds a transaction log HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transactionResponse struct {
	ID                     string    `json:"id"`
	UserID                 string    `json:"user_id"`
	Amount                 string    `json:"amount"`
	Currency               string    `json:"currency"`
	Type                   Type      `json:"type"`
	Status                 Status    `json:"status"`
	Reference              string    `json:"reference"`
	WalletAddress          string    `json:"wallet_address,omitempty"`
	BlockchainTxHash       string    `json:"blockchain_tx_hash,omitempty"`
	BlockNumber            uint64    `json:"block_number,omitempty"`
	TxHash                 string    `json:"tx_hash,omitempty"`
	FailureReason          string    `json:"failure_reason,omitempty"`
	RecipientWalletAddress string    `json:"recipient_wallet_address,omitempty"`
	SenderWalletAddress    string    `json:"sender_wallet_address,omitempty"`
	BankCode               string    `json:"bank_code,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func toResponse(t Transaction) transactionResponse {
	return transactionResponse{
		ID:                     t.ID,
		UserID:                 t.UserID,
		Amount:                 t.Amount.String(),
		Currency:               t.Currency,
		Type:                   t.Type,
		Status:                 t.Status,
		Reference:              t.Reference,
		WalletAddress:          t.WalletAddress,
		BlockchainTxHash:       t.BlockchainTxHash,
		BlockNumber:            t.BlockNumber,
		TxHash:                 t.TxHash,
		FailureReason:          t.FailureReason,
		RecipientWalletAddress: t.RecipientWalletAddress,
		SenderWalletAddress:    t.SenderWalletAddress,
		BankCode:               t.BankCode,
		CreatedAt:              t.CreatedAt,
		UpdatedAt:              t.UpdatedAt,
	}
}

// List returns records filtered by ?user_id=, ?type=, ?status= and ?limit=.
func (h *Handler) List(c *fiber.Ctx) error {
	f := Filter{
		UserID: c.Query("user_id"),
		Type:   Type(strings.ToUpper(c.Query("type"))),
		Status: Status(strings.ToUpper(c.Query("status"))),
		Limit:  c.QueryInt("limit", 100),
	}
	if f.Type != "" && !f.Type.Valid() {
		return fiber.NewError(http.StatusBadRequest, "unknown transaction type")
	}
	if f.Status != "" && !f.Status.Valid() {
		return fiber.NewError(http.StatusBadRequest, "unknown transaction status")
	}
	if f.Limit <= 0 || f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}

	records, err := h.service.List(c.UserContext(), f)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]transactionResponse, 0, len(records))
	for _, t := range records {
		out = append(out, toResponse(t))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out, "count": len(out)})
}

// ByReference returns every record sharing :reference, such as a transfer
// and its receive counterpart.
func (h *Handler) ByReference(c *fiber.Ctx) error {
	records, err := h.service.ByReference(c.UserContext(), c.Params("reference"))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	if len(records) == 0 {
		return fiber.NewError(http.StatusNotFound, ErrTransactionNotFound.Error())
	}
	out := make([]transactionResponse, 0, len(records))
	for _, t := range records {
		out = append(out, toResponse(t))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out, "count": len(out)})
}
