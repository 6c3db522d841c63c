package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/app/models"
)

// KeyErrorMessage holds the internal error text a handler wants in the API
// log. It is never sent to the client.
const KeyErrorMessage = "API_ERROR_MESSAGE"

// APIRecorder receives one APILog per request.
type APIRecorder interface {
	LogAPI(ctx context.Context, entry *models.APILog)
}

// RequestLogMiddleware writes an APILog row for every request passing
// through it, whatever the authentication outcome.
func RequestLogMiddleware(recorder APIRecorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		message, _ := c.Locals(KeyErrorMessage).(string)
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
			if message == "" {
				message = err.Error()
			}
		}

		entry := &models.APILog{
			CorrelationID:  CorrelationID(c),
			Method:         c.Method(),
			URL:            truncate(c.OriginalURL(), 1000),
			IP:             truncate(ClientIP(c), 45),
			ResponseStatus: status,
			ResponseTimeMs: time.Since(start).Milliseconds(),
			ErrorMessage:   message,
		}
		if res, ok := APIKeyResult(c); ok {
			entry.KeyPrefix = res.Prefix
		}
		recorder.LogAPI(c.UserContext(), entry)
		return err
	}
}

// SetErrorMessage stores err for the API log.
func SetErrorMessage(c *fiber.Ctx, err error) {
	if err != nil {
		c.Locals(KeyErrorMessage, err.Error())
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
