package ussd

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the gateway callback.
type Handler struct {
	machine *Machine
}

// NewHandler builds a USSD HTTP handler.
func NewHandler(machine *Machine) *Handler {
	return &Handler{machine: machine}
}

// Callback accepts a form encoded or JSON gateway request and replies with
// a plain text CON/END body.
func (h *Handler) Callback(c *fiber.Ctx) error {
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.SessionID == "" || req.PhoneNumber == "" {
		return fiber.NewError(http.StatusBadRequest, "sessionId and phoneNumber are required")
	}

	reply := h.machine.Handle(c.UserContext(), req)
	c.Type("txt")
	return c.Status(http.StatusOK).SendString(reply)
}
