package funding

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the manual deposit processing trigger.
type Handler struct {
	processor *Processor
}

// NewHandler constructs a funding handler.
func NewHandler(processor *Processor) *Handler {
	return &Handler{processor: processor}
}

type processResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Summary
}

// ProcessDeposits runs the deposit processor once.
func (h *Handler) ProcessDeposits(c *fiber.Ctx) error {
	summary, err := h.processor.Run(c.UserContext())
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(processResponse{Error: "Failed to process deposits"})
	}
	return c.Status(http.StatusOK).JSON(processResponse{Success: true, Message: "Deposits processed", Summary: summary})
}
