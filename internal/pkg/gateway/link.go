package gateway

import (
	"context"
	"net/url"
	"strings"

	"github.com/ManuelReschke/PayFox/app/models"
)

// HostedForm sends the customer to the service's own payment form.
type HostedForm struct {
	baseURL string
}

func NewHostedForm(baseURL string) *HostedForm {
	return &HostedForm{baseURL: baseURL}
}

func (h *HostedForm) Name() string { return "form" }

func (h *HostedForm) Dispatch(_ context.Context, payment models.Payment) (Result, error) {
	return Result{
		Status:       models.PaymentStatusPending,
		Link:         FormLink(h.baseURL, payment.PaymentID),
		ResponseType: models.ResponseTypeInternalForm,
		Message:      "awaiting hosted form submission",
	}, nil
}

// CardRedirect sends the customer to an external card checkout page. Without
// a configured checkout URL the hosted form is used in card mode.
type CardRedirect struct {
	baseURL     string
	checkoutURL string
}

func NewCardRedirect(baseURL, checkoutURL string) *CardRedirect {
	return &CardRedirect{baseURL: baseURL, checkoutURL: strings.TrimSpace(checkoutURL)}
}

func (c *CardRedirect) Name() string { return "card" }

func (c *CardRedirect) Dispatch(_ context.Context, payment models.Payment) (Result, error) {
	link := FormLink(c.baseURL, payment.PaymentID) + "?method=card"
	if c.checkoutURL != "" {
		link = strings.ReplaceAll(c.checkoutURL, "{id}", url.PathEscape(payment.PaymentID))
	}
	return Result{
		Status:       models.PaymentStatusPending,
		Link:         link,
		ResponseType: models.ResponseTypeRedirect,
		Message:      "awaiting card checkout",
	}, nil
}

// Manual covers cash on delivery, test payments and unknown methods. Nothing
// leaves the service; the payment waits for an explicit status change.
type Manual struct{}

func NewManual() *Manual { return &Manual{} }

func (m *Manual) Name() string { return "manual" }

func (m *Manual) Dispatch(context.Context, models.Payment) (Result, error) {
	return Result{
		Status:       models.PaymentStatusPending,
		ResponseType: models.ResponseTypeDirect,
		Message:      "awaiting manual confirmation",
	}, nil
}
