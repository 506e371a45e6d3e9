package wallet

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxwallet/internal/ledger"
	"github.com/congo-pay/fxwallet/internal/money"
	"github.com/congo-pay/fxwallet/internal/validation"
)

// Handler exposes wallet HTTP endpoints. Amounts with more than eight
// decimal places are refused with INVALID_AMOUNT instead of being rounded.
type Handler struct {
	service  *Service
	validate *validation.Validator
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service, validate *validation.Validator) *Handler {
	return &Handler{service: service, validate: validate}
}

type moveRequest struct {
	Currency string           `json:"currency" validate:"required,currency"`
	Amount   *decimal.Decimal `json:"amount" validate:"required,amount"`
}

type convertRequest struct {
	FromCurrency string           `json:"from_currency" validate:"required,currency"`
	ToCurrency   string           `json:"to_currency" validate:"required,currency"`
	Amount       *decimal.Decimal `json:"amount" validate:"required,amount"`
}

type transactionResponse struct {
	ID           int64   `json:"id"`
	Type         string  `json:"type"`
	Currency     string  `json:"currency"`
	Amount       string  `json:"amount"`
	FromCurrency *string `json:"from_currency"`
	ToCurrency   *string `json:"to_currency"`
	FxRate       *string `json:"fx_rate"`
	Timestamp    string  `json:"timestamp"`
}

// Fund credits a wallet.
func (h *Handler) Fund(c *fiber.Ctx) error {
	userID, req, err := h.parseMove(c)
	if err != nil {
		return err
	}
	balance, err := h.service.Fund(c.UserContext(), userID, req.Currency, *req.Amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Funded %s %s", money.Format(*req.Amount), req.Currency),
		"balance": money.Format(balance),
	})
}

// Withdraw debits a wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	userID, req, err := h.parseMove(c)
	if err != nil {
		return err
	}
	balance, err := h.service.Withdraw(c.UserContext(), userID, req.Currency, *req.Amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Withdrew %s %s", money.Format(*req.Amount), req.Currency),
		"balance": money.Format(balance),
	})
}

// Convert exchanges value between two of the user's wallets.
func (h *Handler) Convert(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if err := h.validate.UserID(userID); err != nil {
		return err
	}
	var req convertRequest
	if err := c.BodyParser(&req); err != nil {
		return validation.Field("body", "invalid request format")
	}
	if err := h.validate.Struct(req); err != nil {
		return err
	}

	res, err := h.service.Convert(c.UserContext(), userID, req.FromCurrency, req.ToCurrency, *req.Amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Converted %s %s to %s %s",
			money.Format(*req.Amount), req.FromCurrency, money.Format(res.Converted), req.ToCurrency),
		"fx_rate":          money.Format(res.Rate),
		"converted_amount": money.Format(res.Converted),
	})
}

// Balances lists non-zero balances.
func (h *Handler) Balances(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if err := h.validate.UserID(userID); err != nil {
		return err
	}
	balances, err := h.service.Balances(c.UserContext(), userID)
	if err != nil {
		return err
	}
	out := make(map[string]string, len(balances))
	for cur, bal := range balances {
		out[cur] = money.Format(bal)
	}
	return c.Status(http.StatusOK).JSON(out)
}

// Transactions returns the history, newest first. A missing or non-positive
// limit selects the service default.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if err := h.validate.UserID(userID); err != nil {
		return err
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return validation.Field("limit", "limit must be an integer")
		}
		limit = n
	}

	txns, err := h.service.History(c.UserContext(), userID, limit)
	if err != nil {
		return err
	}
	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out})
}

func (h *Handler) parseMove(c *fiber.Ctx) (string, moveRequest, error) {
	userID := c.Params("userId")
	if err := h.validate.UserID(userID); err != nil {
		return "", moveRequest{}, err
	}
	var req moveRequest
	if err := c.BodyParser(&req); err != nil {
		return "", moveRequest{}, validation.Field("body", "invalid request format")
	}
	if err := h.validate.Struct(req); err != nil {
		return "", moveRequest{}, err
	}
	return userID, req, nil
}

func toTransactionResponse(t ledger.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:        t.ID,
		Type:      t.Kind.String(),
		Currency:  t.Currency,
		Amount:    money.Format(t.Amount),
		Timestamp: t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.FromCurrency != "" {
		from := t.FromCurrency
		resp.FromCurrency = &from
	}
	if t.ToCurrency != "" {
		to := t.ToCurrency
		resp.ToCurrency = &to
	}
	if t.FxRate != nil {
		rate := money.Format(*t.FxRate)
		resp.FxRate = &rate
	}
	return resp
}
