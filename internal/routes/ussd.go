package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/avanomad/avanomad/internal/middleware"
	"github.com/avanomad/avanomad/internal/ussd"
)

// RegisterUSSDRoutes wires the gateway callback. Rate limiting and replay
// protection only engage when Redis is available.
func RegisterUSSDRoutes(app *fiber.App, h *ussd.Handler, d Deps) {
	app.Post("/ussd",
		middleware.PhoneRateLimit(d.Cache, d.Cfg.USSDRateLimit),
		middleware.USSDReplay(d.Cache, d.Cfg.USSDReplayTTL, d.Logger),
		h.Callback,
	)
}
