package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/internal/pkg/apikey"
)

// Locals keys set by the middlewares in this package.
const (
	KeyCorrelationID = "requestid"
	KeyAPIKey        = "API_KEY_RESULT"
)

// APIKeyAuthMiddleware authenticates requests carrying an API key header.
// Every decision is recorded by the authenticator before the response.
func APIKeyAuthMiddleware(auth *apikey.Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res := auth.Authenticate(c.UserContext(), extractAPIKeyFromHeader(c), apikey.Meta{
			CorrelationID: CorrelationID(c),
			Path:          truncate(c.Path(), 500),
			IP:            ClientIP(c),
		})
		c.Locals(KeyAPIKey, res)

		if !res.Accepted {
			message := "Invalid API key"
			if res.Reason == apikey.ReasonMissing {
				message = "Missing API key"
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "unauthorized", "message": message})
		}
		return c.Next()
	}
}

// RequirePartner only lets partner keys through whose kind matches the
// route parameter param. It must run after APIKeyAuthMiddleware.
func RequirePartner(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, ok := APIKeyResult(c)
		partner := strings.ToLower(c.Params(param))
		if !ok || !res.Accepted || !res.IsPartner() || res.Partner != partner {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "error": "forbidden", "message": "API key is not valid for partner " + partner})
		}
		return c.Next()
	}
}

// APIKeyResult returns the authentication result stored for the request.
func APIKeyResult(c *fiber.Ctx) (apikey.Result, bool) {
	res, ok := c.Locals(KeyAPIKey).(apikey.Result)
	return res, ok
}

// CorrelationID returns the request id assigned by RequestID. Without it a
// well-formed X-Request-ID header is used.
func CorrelationID(c *fiber.Ctx) string {
	if id, ok := c.Locals(KeyCorrelationID).(string); ok {
		return id
	}
	if id := c.Get(fiber.HeaderXRequestID); ValidCorrelationID(id) {
		return id
	}
	return ""
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
