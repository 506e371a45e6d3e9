package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxwallet/internal/ledger"
	"github.com/congo-pay/fxwallet/internal/validation"
)

// ErrorHandler renders errors returned by handlers. Business and validation
// failures become 400 with their code; fiber errors keep their status; every
// other error is logged and hidden behind a generic 500.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if verr, ok := validation.As(err); ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "validation error",
				"code":    validation.Code,
				"details": verr.Fields,
			})
		}
		if lerr, ok := ledger.AsError(err); ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
				"code":  lerr.Code,
			})
		}

		var ferr *fiber.Error
		if errors.As(err, &ferr) {
			return c.Status(ferr.Code).JSON(fiber.Map{"error": ferr.Message})
		}

		requestID, _ := c.Locals(requestIDHeader).(string)
		logger.Error("unhandled error",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("request_id", requestID),
			slog.Any("error", err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}
