package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// MaxCorrelationIDLength is the size of every correlation_id column.
const MaxCorrelationIDLength = 64

// RequestID assigns the request's correlation id. A client-supplied
// X-Request-ID is only kept when ValidCorrelationID accepts it; otherwise a
// fresh id is generated.
func RequestID() fiber.Handler {
	assign := requestid.New(requestid.Config{
		Header:     fiber.HeaderXRequestID,
		ContextKey: KeyCorrelationID,
	})
	return func(c *fiber.Ctx) error {
		if id := c.Get(fiber.HeaderXRequestID); id != "" && !ValidCorrelationID(id) {
			c.Request().Header.Del(fiber.HeaderXRequestID)
		}
		return assign(c)
	}
}

// ValidCorrelationID reports whether id fits the correlation id columns and
// only uses letters, digits and "-", "_", ".", ":".
func ValidCorrelationID(id string) bool {
	if id == "" || len(id) > MaxCorrelationIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		b := id[i]
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		case b == '-', b == '_', b == '.', b == ':':
		default:
			return false
		}
	}
	return true
}
