package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
	"github.com/ManuelReschke/PayFox/internal/pkg/middleware"
	"github.com/ManuelReschke/PayFox/internal/pkg/payment"
)

// PaymentController serves the /api/v1/payments endpoints.
type PaymentController struct {
	orch *payment.Orchestrator
}

func NewPaymentController(orch *payment.Orchestrator) *PaymentController {
	return &PaymentController{orch: orch}
}

// HandleCreate creates a payment from the raw JSON body. Unknown fields are
// kept on the payment.
func (pc *PaymentController) HandleCreate(c *fiber.Ctx) error {
	p, result, err := pc.orch.Create(c.UserContext(), c.Body(), middleware.CorrelationID(c))
	if err != nil {
		if p != nil && errors.Is(err, apperror.ErrGateway) {
			middleware.SetErrorMessage(c, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"success": false,
				"error":   "gateway_error",
				"message": "Payment gateway unavailable, the payment was marked as failed",
				"data":    paymentData(p),
			})
		}
		return respondError(c, err)
	}

	status := fiber.StatusCreated
	message := paymentMessage(p)
	if !result.Created {
		status = fiber.StatusOK
		message = "Payment already exists"
	}
	return c.Status(status).JSON(fiber.Map{"success": true, "data": paymentData(p), "message": message})
}

// HandleStatus reports the stored state of one payment.
func (pc *PaymentController) HandleStatus(c *fiber.Ctx) error {
	p, err := pc.orch.GetStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": p})
}

// HandleList lists payments, newest first.
func (pc *PaymentController) HandleList(c *fiber.Ctx) error {
	filter := repository.PaymentFilter{
		Status:        models.PaymentStatus(strings.ToLower(c.Query("status"))),
		Method:        strings.ToLower(c.Query("method")),
		Gateway:       strings.ToLower(c.Query("gateway")),
		CustomerPhone: c.Query("phone"),
		OrderID:       c.Query("order_id"),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return respondError(c, apperror.NewValidationError("status", "unknown status"))
	}

	var err error
	if filter.CreatedFrom, err = parseDateQuery(c, "from"); err != nil {
		return respondError(c, err)
	}
	if filter.CreatedTo, err = parseDateQuery(c, "to"); err != nil {
		return respondError(c, err)
	}

	page := repository.Page{Number: c.QueryInt("page", 1), Size: c.QueryInt("per_page", repository.DefaultPageSize)}.Normalize()
	payments, total, err := pc.orch.List(c.UserContext(), filter, page)
	if err != nil {
		return respondError(c, err)
	}

	totalPages := (total + int64(page.Size) - 1) / int64(page.Size)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    payments,
		"pagination": fiber.Map{
			"page":       page.Number,
			"perPage":    page.Size,
			"total":      total,
			"totalPages": totalPages,
		},
	})
}

// HandleStatistics returns aggregate payment statistics.
func (pc *PaymentController) HandleStatistics(c *fiber.Ctx) error {
	stats, err := pc.orch.Statistics(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": stats})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// HandleCancel cancels a payment that has not reached a terminal status.
func (pc *PaymentController) HandleCancel(c *fiber.Ctx) error {
	reason := pc.reason(c, "cancelled via API")
	p, err := pc.orch.Cancel(c.UserContext(), c.Params("id"), middleware.CorrelationID(c), reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": paymentData(p), "message": "Payment cancelled"})
}

// HandleRefund refunds an approved payment.
func (pc *PaymentController) HandleRefund(c *fiber.Ctx) error {
	reason := pc.reason(c, "refunded via API")
	p, err := pc.orch.Refund(c.UserContext(), c.Params("id"), middleware.CorrelationID(c), reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": paymentData(p), "message": "Payment refunded"})
}

func (pc *PaymentController) reason(c *fiber.Ctx, def string) string {
	var req reasonRequest
	if len(c.Body()) > 0 {
		_ = c.BodyParser(&req)
	}
	if r := strings.TrimSpace(req.Reason); r != "" {
		return r
	}
	return def
}

type processRequest struct {
	PaymentID      string `json:"paymentId"`
	PaymentIDSnake string `json:"payment_id"`
	Phone          string `json:"phone"`
	CustomerPhone  string `json:"customerPhone"`
	Customer       struct {
		Phone string `json:"phone"`
	} `json:"customer"`
}

func (r processRequest) id() string {
	return firstNonEmpty(r.PaymentID, r.PaymentIDSnake)
}

func (r processRequest) phone() string {
	return firstNonEmpty(r.Phone, r.CustomerPhone, r.Customer.Phone)
}

// HandleProcess dispatches a pending payment through the method named in the
// path, e.g. POST /payments/process-mpesa.
func (pc *PaymentController) HandleProcess(c *fiber.Ctx) error {
	var req processRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperror.NewValidationError("body", "body must be a JSON object"))
	}
	if req.id() == "" {
		return respondError(c, apperror.NewValidationError("paymentId", "paymentId is required"))
	}

	p, err := pc.orch.Process(c.UserContext(), req.id(), c.Params("method"), payment.ProcessOverrides{
		CustomerPhone: req.phone(),
		CorrelationID: middleware.CorrelationID(c),
	})
	if err != nil {
		if p != nil && errors.Is(err, apperror.ErrGateway) {
			middleware.SetErrorMessage(c, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"success": false,
				"error":   "gateway_error",
				"message": "Payment gateway unavailable, the payment was marked as failed",
				"data":    paymentData(p),
			})
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": paymentData(p), "message": paymentMessage(p)})
}

type infoRequest struct {
	PaymentID         string `json:"paymentId"`
	ExternalReference string `json:"externalReference"`
	ExternalPaymentID string `json:"externalPaymentId"`
	Reference         string `json:"reference"`
}

// HandleInfo returns a payment with its events, mirrored order and recent
// webhook attempts. The route is unauthenticated, so the caller has to know
// both the payment id and an external reference.
func (pc *PaymentController) HandleInfo(c *fiber.Ctx) error {
	var req infoRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperror.NewValidationError("body", "body must be a JSON object"))
	}
	ref := firstNonEmpty(req.ExternalReference, req.ExternalPaymentID, req.Reference)

	info, err := pc.orch.Info(c.UserContext(), strings.TrimSpace(req.PaymentID), ref)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": info})
}

func parseDateQuery(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apperror.NewValidationError(key, "expected RFC 3339 timestamp or YYYY-MM-DD")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
