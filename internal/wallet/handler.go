package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type walletResponse struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Address      string `json:"address"`
	Currency     string `json:"currency"`
	Native       string `json:"native_balance"`
	Token        string `json:"token_balance"`
	TokenError   string `json:"token_error,omitempty"`
	CachedAmount string `json:"cached_balance"`
}

// Balance returns a live balance for the wallet at :address.
func (h *Handler) Balance(c *fiber.Ctx) error {
	w, err := h.service.ByAddress(c.UserContext(), c.Params("address"))
	if errors.Is(err, ErrWalletNotFound) {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	bal, err := h.service.Balance(c.UserContext(), w)
	if err != nil {
		return fiber.NewError(http.StatusBadGateway, err.Error())
	}
	resp := walletResponse{
		ID:           w.ID,
		UserID:       w.UserID,
		Address:      w.Address,
		Currency:     w.Currency,
		Native:       bal.Native.String(),
		Token:        bal.Token.String(),
		CachedAmount: w.Balance.String(),
	}
	if bal.TokenErr != nil {
		resp.TokenError = bal.TokenErr.Error()
	}
	return c.Status(http.StatusOK).JSON(resp)
}
