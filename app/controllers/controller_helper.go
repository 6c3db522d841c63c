package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/middleware"
)

// respondError maps the error taxonomy to a JSON error body. Gateway and
// persistence details only go to the logs.
func respondError(c *fiber.Ctx, err error) error {
	middleware.SetErrorMessage(c, err)

	var ve *apperror.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "validation_error", "message": "Invalid request", "fields": ve.Fields})
	case errors.Is(err, apperror.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "validation_error", "message": err.Error()})
	case errors.Is(err, apperror.ErrAuthentication):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "unauthorized", "message": "Authentication failed"})
	case errors.Is(err, apperror.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "not_found", "message": "Payment not found"})
	case errors.Is(err, apperror.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "error": "invalid_transition", "message": err.Error()})
	case errors.Is(err, apperror.ErrGateway):
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusBadGateway).JSON(withDetail(fiber.Map{"success": false, "error": "gateway_error", "message": "Payment gateway unavailable"}, err))
	default:
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(withDetail(fiber.Map{"success": false, "error": "internal_server_error", "message": "Internal server error"}, err))
	}
}

// withDetail exposes the underlying error in development only.
func withDetail(body fiber.Map, err error) fiber.Map {
	if env.IsDev() {
		body["detail"] = err.Error()
	}
	return body
}

// paymentData is the payment summary returned by the write endpoints.
func paymentData(p *models.Payment) fiber.Map {
	data := fiber.Map{
		"externalPayment": fiber.Map{"id": p.PaymentID},
		"status":          p.Status,
		"responseType":    p.ResponseType,
		"amount":          p.Amount.StringFixed(2),
		"currency":        p.Currency,
		"gateway":         p.Gateway,
	}
	if p.Link != "" {
		data["link"] = p.Link
	}
	if method := p.Method(); method != "" {
		data["paymentMethod"] = method
	}
	if tx := p.TransactionID(); tx != "" {
		data["transactionId"] = tx
	}
	return data
}

func paymentMessage(p *models.Payment) string {
	switch p.Status {
	case models.PaymentStatusPending:
		if p.Link != "" {
			return "Payment created, continue at the returned link"
		}
		return "Payment created"
	case models.PaymentStatusProcessing:
		return "Payment is being processed"
	default:
		return "Payment " + string(p.Status)
	}
}
