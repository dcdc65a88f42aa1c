package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/avanomad/avanomad/internal/identity"
)

// RegisterIdentityRoutes wires operator account lookups.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Get("/accounts", h.Lookup)
}
