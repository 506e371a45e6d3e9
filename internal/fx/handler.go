package fx

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxwallet/internal/money"
	"github.com/congo-pay/fxwallet/internal/validation"
)

// Handler exposes the rate table over HTTP.
type Handler struct {
	rates    *RateTable
	validate *validation.Validator
}

// NewHandler builds an FX HTTP handler.
func NewHandler(rates *RateTable, validate *validation.Validator) *Handler {
	return &Handler{rates: rates, validate: validate}
}

type upsertRequest struct {
	FromCurrency string           `json:"from_currency" validate:"required,currency"`
	ToCurrency   string           `json:"to_currency" validate:"required,currency"`
	Rate         *decimal.Decimal `json:"rate" validate:"required,amount"`
}

type quoteParams struct {
	FromCurrency string `json:"from_currency" validate:"required,currency"`
	ToCurrency   string `json:"to_currency" validate:"required,currency"`
}

type rateResponse struct {
	Rate      string `json:"rate"`
	UpdatedAt string `json:"updated_at"`
}

// List returns every stored rate keyed "FROM/TO".
func (h *Handler) List(c *fiber.Ctx) error {
	rates, err := h.rates.List(c.UserContext())
	if err != nil {
		return err
	}
	out := make(map[string]rateResponse, len(rates))
	for _, r := range rates {
		out[r.Pair()] = rateResponse{
			Rate:      money.Format(r.Rate),
			UpdatedAt: r.UpdatedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"rates": out})
}

// Upsert sets the rate of one ordered pair.
func (h *Handler) Upsert(c *fiber.Ctx) error {
	var req upsertRequest
	if err := c.BodyParser(&req); err != nil {
		return validation.Field("body", "invalid request format")
	}
	if err := h.validate.Struct(req); err != nil {
		return err
	}

	r, err := h.rates.Upsert(c.UserContext(), req.FromCurrency, req.ToCurrency, *req.Rate)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Updated rate %s to %s", r.Pair(), money.Format(r.Rate)),
	})
}

// Quote returns the current multiplier for one ordered pair.
func (h *Handler) Quote(c *fiber.Ctx) error {
	p := quoteParams{
		FromCurrency: strings.ToUpper(c.Params("from")),
		ToCurrency:   strings.ToUpper(c.Params("to")),
	}
	if err := h.validate.Struct(p); err != nil {
		return err
	}

	rate, err := h.rates.Lookup(c.UserContext(), p.FromCurrency, p.ToCurrency)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"from_currency": p.FromCurrency,
		"to_currency":   p.ToCurrency,
		"rate":          money.Format(rate),
	})
}
