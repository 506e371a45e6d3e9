package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxwallet/internal/reconcile"
	"github.com/congo-pay/fxwallet/internal/wallet"
)

// RegisterWalletRoutes wires per-user wallet endpoints. limit guards the
// mutating ones.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, rh *reconcile.Handler, limit fiber.Handler) {
	g := r.Group("/wallets/:userId")
	g.Post("/fund", limit, h.Fund)
	g.Post("/withdraw", limit, h.Withdraw)
	g.Post("/convert", limit, h.Convert)
	g.Get("/balances", h.Balances)
	g.Get("/transactions", h.Transactions)
	g.Get("/reconcile", rh.Reconcile)
}
