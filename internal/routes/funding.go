package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/avanomad/avanomad/internal/funding"
)

// RegisterFundingRoutes wires the manual deposit processing trigger.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler, guard fiber.Handler) {
	r.Post("/process-deposits", guard, h.ProcessDeposits)
}
