package reconcile

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxwallet/internal/money"
	"github.com/congo-pay/fxwallet/internal/validation"
)

// Handler exposes on-demand reconciliation.
type Handler struct {
	engine   *Engine
	validate *validation.Validator
}

// NewHandler builds a reconciliation HTTP handler.
func NewHandler(engine *Engine, validate *validation.Validator) *Handler {
	return &Handler{engine: engine, validate: validate}
}

type discrepancyResponse struct {
	Calculated string `json:"calculated"`
	Actual     string `json:"actual"`
	Difference string `json:"difference"`
}

// Reconcile reports whether the user's balances match their history.
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if err := h.validate.UserID(userID); err != nil {
		return err
	}
	report, err := h.engine.Reconcile(c.UserContext(), userID)
	if err != nil {
		return err
	}

	out := make(map[string]discrepancyResponse, len(report.Discrepancies))
	for cur, d := range report.Discrepancies {
		out[cur] = discrepancyResponse{
			Calculated: money.Format(d.Calculated),
			Actual:     money.Format(d.Actual),
			Difference: money.Format(d.Difference),
		}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"reconciled":    report.Reconciled,
		"discrepancies": out,
	})
}
