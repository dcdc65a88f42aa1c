package routes

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/avanomad/avanomad/internal/funding"
	"github.com/avanomad/avanomad/internal/identity"
	"github.com/avanomad/avanomad/internal/ledger"
	"github.com/avanomad/avanomad/internal/middleware"
	"github.com/avanomad/avanomad/internal/ussd"
	"github.com/avanomad/avanomad/internal/wallet"
)

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps, s *Services) {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(cors.New(cors.Config{
		AllowOrigins: d.Cfg.FrontendURL,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if d.Cfg.IsProduction() {
		app.Use(middleware.Audit(d.Logger))
	} else {
		// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}

	app.Get("/", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"message":   "Welcome to Avanomad API",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	RegisterHealthRoutes(app, d, s)

	RegisterUSSDRoutes(app, ussd.NewHandler(s.Machine), d)

	if d.Cfg.AdminAPIKey == "" {
		d.Logger.Warn("ADMIN_API_KEY not set, operator endpoints are unauthenticated")
	}
	admin := middleware.AdminKey(d.Cfg.AdminAPIKey)
	RegisterFundingRoutes(app, funding.NewHandler(s.Funding), admin)

	api := app.Group("/api/v1/admin", admin)
	RegisterIdentityRoutes(api, identity.NewHandler(s.Identity))
	RegisterWalletRoutes(api, wallet.NewHandler(s.Wallets))
	RegisterLedgerRoutes(api, ledger.NewHandler(s.Ledger))
}
