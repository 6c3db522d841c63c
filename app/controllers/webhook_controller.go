package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/internal/pkg/middleware"
	"github.com/ManuelReschke/PayFox/internal/pkg/webhook"
)

// loggedWebhookHeaders are copied into the webhook log row.
var loggedWebhookHeaders = append([]string{
	fiber.HeaderContentType,
	fiber.HeaderUserAgent,
	fiber.HeaderXRequestID,
	fiber.HeaderXForwardedFor,
}, webhook.SignatureHeaders...)

// WebhookController receives provider callbacks. Authentication is the body
// signature, not an API key.
type WebhookController struct {
	ingress *webhook.Ingress
}

func NewWebhookController(ingress *webhook.Ingress) *WebhookController {
	return &WebhookController{ingress: ingress}
}

// HandleWebhook verifies and applies a callback for the :provider path
// parameter.
func (wc *WebhookController) HandleWebhook(c *fiber.Ctx) error {
	// the body buffer is reused by fasthttp after the handler returns
	body := append([]byte(nil), c.Body()...)

	headers := make(map[string]string, len(loggedWebhookHeaders))
	for _, h := range loggedWebhookHeaders {
		if v := c.Get(h); v != "" {
			headers[h] = v
		}
	}

	sig := webhook.SignatureFrom(func(key string) string { return c.Get(key) })
	out := wc.ingress.Receive(c.UserContext(), body, sig, c.Params("provider"), webhook.Meta{
		CorrelationID: middleware.CorrelationID(c),
		Headers:       headers,
	})
	if out.Status >= fiber.StatusBadRequest {
		c.Locals(middleware.KeyErrorMessage, out.Message)
	}

	resp := fiber.Map{
		"success": out.Status < fiber.StatusBadRequest,
		"outcome": out.Result,
		"message": out.Message,
	}
	if out.PaymentID != "" {
		resp["paymentId"] = out.PaymentID
	}
	return c.Status(out.Status).JSON(resp)
}
