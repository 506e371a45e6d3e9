package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxwallet/internal/fx"
)

// RegisterFXRoutes wires the rate table endpoints.
func RegisterFXRoutes(r fiber.Router, h *fx.Handler, admin fiber.Handler) {
	r.Get("/fx/rates", h.List)
	r.Put("/fx/rates", admin, h.Upsert)
	r.Get("/fx/rates/:from/:to", h.Quote)
}
