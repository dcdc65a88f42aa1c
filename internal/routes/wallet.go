package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/avanomad/avanomad/internal/ledger"
	"github.com/avanomad/avanomad/internal/wallet"
)

// RegisterWalletRoutes wires wallet balance lookups.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallets/:address", h.Balance)
}

// RegisterLedgerRoutes wires transaction log listings.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler) {
	r.Get("/transactions", h.List)
	r.Get("/transactions/:reference", h.ByReference)
}
