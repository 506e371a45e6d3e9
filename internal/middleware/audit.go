package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxwallet/internal/ledger"
	"github.com/congo-pay/fxwallet/internal/validation"
)

// Audit emits one structured log line per request. Business and validation
// rejections are logged at warn with their code; anything else that failed
// is logged at error.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		duration := time.Since(start)
		requestID, _ := c.Locals(requestIDHeader).(string)

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Duration("duration", duration),
		}
		if requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if userID := c.Params("userId"); userID != "" {
			attrs = append(attrs, slog.String("user_id", userID))
		}

		if err == nil {
			attrs = append(attrs, slog.Int("status", c.Response().StatusCode()))
			logger.Info("request completed", attrs...)
			return nil
		}

		if lerr, ok := ledger.AsError(err); ok {
			attrs = append(attrs, slog.String("code", lerr.Code), slog.String("reason", err.Error()))
			logger.Warn("request rejected", attrs...)
			return err
		}
		if _, ok := validation.As(err); ok {
			attrs = append(attrs, slog.String("code", validation.Code), slog.String("reason", err.Error()))
			logger.Warn("request rejected", attrs...)
			return err
		}
		attrs = append(attrs, slog.Any("error", err))
		logger.Error("request failed", attrs...)
		return err
	}
}
