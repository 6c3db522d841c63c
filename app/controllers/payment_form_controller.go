package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
	"github.com/ManuelReschke/PayFox/internal/pkg/middleware"
	"github.com/ManuelReschke/PayFox/internal/pkg/payment"
)

// FormMethod is a payment method offered on the hosted form.
type FormMethod struct {
	Tag        string
	Label      string
	NeedsPhone bool
}

var formMethods = []FormMethod{
	{Tag: "mpesa", Label: "M-Pesa", NeedsPhone: true},
	{Tag: "emola", Label: "e-Mola", NeedsPhone: true},
	{Tag: "mkesh", Label: "mKesh", NeedsPhone: true},
	{Tag: "card", Label: "Card"},
}

// PaymentFormController renders the hosted payment form a create response
// links to.
type PaymentFormController struct {
	orch *payment.Orchestrator
}

func NewPaymentFormController(orch *payment.Orchestrator) *PaymentFormController {
	return &PaymentFormController{orch: orch}
}

// HandleForm renders the form for a payment.
func (fc *PaymentFormController) HandleForm(c *fiber.Ctx) error {
	p, err := fc.orch.GetStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return fc.renderError(c, err)
	}
	return fc.render(c, fiber.StatusOK, p, fiber.Map{
		"Selected": strings.ToLower(c.Query("method", p.Method())),
	})
}

// HandleProcess submits the chosen method and phone number.
func (fc *PaymentFormController) HandleProcess(c *fiber.Ctx) error {
	id := c.Params("id")
	method := strings.ToLower(strings.TrimSpace(c.FormValue("method")))
	phone := strings.TrimSpace(c.FormValue("phone"))

	p, err := fc.orch.Process(c.UserContext(), id, method, payment.ProcessOverrides{
		CustomerPhone: phone,
		CorrelationID: middleware.CorrelationID(c),
	})
	if err != nil && p == nil {
		return fc.renderError(c, err, fiber.Map{"Selected": method, "Phone": phone})
	}
	if err != nil {
		middleware.SetErrorMessage(c, err)
		status, message := formError(err)
		return fc.render(c, status, p, fiber.Map{"Error": message, "Selected": method, "Phone": phone})
	}

	if p.ResponseType == models.ResponseTypeRedirect && p.Link != "" && !strings.Contains(p.Link, "/payment-form/") {
		return c.Redirect(p.Link, fiber.StatusSeeOther)
	}
	return fc.render(c, fiber.StatusOK, p, fiber.Map{"Message": formMessage(p)})
}

func (fc *PaymentFormController) render(c *fiber.Ctx, status int, p *models.Payment, extra fiber.Map) error {
	data := fiber.Map{
		"PaymentID": p.PaymentID,
		"Amount":    p.Amount.StringFixed(2),
		"Currency":  p.Currency,
		"Status":    string(p.Status),
		"Pending":   p.Status == models.PaymentStatusPending,
		"ReturnURL": p.ReturnURL,
		"Methods":   formMethods,
		"Selected":  p.Method(),
		"Phone":     p.CustomerPhone,
	}
	for k, v := range extra {
		data[k] = v
	}
	return c.Status(status).Render("payment_form", data)
}

func (fc *PaymentFormController) renderError(c *fiber.Ctx, err error, extra ...fiber.Map) error {
	middleware.SetErrorMessage(c, err)
	status, message := formError(err)
	data := fiber.Map{"Error": message, "PaymentID": c.Params("id"), "Methods": formMethods}
	for _, m := range extra {
		for k, v := range m {
			data[k] = v
		}
	}
	if status == fiber.StatusBadRequest {
		// the payment exists, keep the form usable
		if p, gerr := fc.orch.GetStatus(c.UserContext(), c.Params("id")); gerr == nil {
			data["Error"] = message
			return fc.render(c, status, p, data)
		}
	}
	return c.Status(status).Render("payment_form", data)
}

func formError(err error) (int, string) {
	var ve *apperror.ValidationError
	switch {
	case errors.As(err, &ve):
		for _, msg := range ve.Fields {
			return fiber.StatusBadRequest, msg
		}
		return fiber.StatusBadRequest, "Please check your input"
	case errors.Is(err, apperror.ErrNotFound):
		return fiber.StatusNotFound, "Payment not found"
	case errors.Is(err, apperror.ErrInvalidTransition):
		return fiber.StatusConflict, "This payment can no longer be processed"
	case errors.Is(err, apperror.ErrGateway):
		return fiber.StatusBadGateway, "The payment provider is unavailable, please try again later"
	default:
		log.Errorf("[PaymentForm] %v", err)
		return fiber.StatusInternalServerError, "Something went wrong"
	}
}

func formMessage(p *models.Payment) string {
	switch p.Status {
	case models.PaymentStatusProcessing:
		return "Confirm the payment on your phone. This page shows the result once the provider reports it."
	case models.PaymentStatusApproved:
		return "Payment approved. Thank you!"
	case models.PaymentStatusFailed:
		return "The payment failed."
	default:
		return "Payment " + string(p.Status)
	}
}
