package fx

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/fxwallet/internal/ledger"
	"github.com/congo-pay/fxwallet/internal/logging"
	"github.com/congo-pay/fxwallet/internal/middleware"
	"github.com/congo-pay/fxwallet/internal/validation"
)

func setupFXApp(t *testing.T) *fiber.App {
	t.Helper()
	logger := logging.Discard()
	table := NewRateTable(ledger.NewInMemory(), nil, logger)
	h := NewHandler(table, validation.New([]string{"USD", "MXN"}))

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logger)})
	app.Get("/fx/rates", h.List)
	app.Put("/fx/rates", h.Upsert)
	app.Get("/fx/rates/:from/:to", h.Quote)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestHandler_UpsertThenList(t *testing.T) {
	app := setupFXApp(t)

	status, body := do(t, app, fiber.MethodPut, "/fx/rates", `{"from_currency":"USD","to_currency":"MXN","rate":19.5}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Updated rate USD/MXN to 19.50000000", body["message"])

	status, body = do(t, app, fiber.MethodGet, "/fx/rates", "")
	require.Equal(t, fiber.StatusOK, status)
	rates := body["rates"].(map[string]any)
	require.Contains(t, rates, "USD/MXN")
	entry := rates["USD/MXN"].(map[string]any)
	assert.Equal(t, "19.50000000", entry["rate"])
	assert.NotEmpty(t, entry["updated_at"])
}

func TestHandler_UpsertRejectsBadInput(t *testing.T) {
	app := setupFXApp(t)

	status, body := do(t, app, fiber.MethodPut, "/fx/rates", `{"from_currency":"USD","to_currency":"EUR","rate":"1"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, validation.Code, body["code"])

	status, body = do(t, app, fiber.MethodPut, "/fx/rates", `{"from_currency":"USD","to_currency":"MXN","rate":"-2"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "INVALID_RATE", body["code"])

	status, body = do(t, app, fiber.MethodPut, "/fx/rates", `{"from_currency":"USD","to_currency":"USD","rate":"2"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "SAME_CURRENCY_CONVERSION", body["code"])

	status, body = do(t, app, fiber.MethodPut, "/fx/rates", `not json`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, validation.Code, body["code"])
}

func TestHandler_Quote(t *testing.T) {
	app := setupFXApp(t)

	status, _ := do(t, app, fiber.MethodPut, "/fx/rates", `{"from_currency":"USD","to_currency":"MXN","rate":"18.70"}`)
	require.Equal(t, fiber.StatusOK, status)

	status, body := do(t, app, fiber.MethodGet, "/fx/rates/usd/mxn", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "18.70000000", body["rate"])
	assert.Equal(t, "USD", body["from_currency"])

	status, body = do(t, app, fiber.MethodGet, "/fx/rates/MXN/USD", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "RATE_NOT_FOUND", body["code"])

	status, body = do(t, app, fiber.MethodGet, "/fx/rates/USD/EUR", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, validation.Code, body["code"])
}
