package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes operator lookups over registered accounts.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type accountResponse struct {
	UserID        string    `json:"user_id"`
	PhoneHash     string    `json:"phone_hash"`
	WalletAddress string    `json:"wallet_address"`
	CreatedAt     time.Time `json:"created_at"`
}

// Lookup resolves an account by raw phone number passed as ?phone=.
func (h *Handler) Lookup(c *fiber.Ctx) error {
	phone := c.Query("phone")
	if phone == "" {
		return fiber.NewError(http.StatusBadRequest, "phone is required")
	}
	user, err := h.service.Lookup(c.UserContext(), phone)
	if errors.Is(err, ErrUserNotFound) {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(accountResponse{
		UserID:        user.ID,
		PhoneHash:     user.PhoneHash,
		WalletAddress: user.WalletAddress,
		CreatedAt:     user.CreatedAt,
	})
}
