// Package webhook verifies and applies provider callbacks.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
	"github.com/ManuelReschke/PayFox/internal/pkg/gateway"
	"github.com/ManuelReschke/PayFox/internal/pkg/payment"
	"github.com/ManuelReschke/PayFox/internal/pkg/signature"
)

// ProcessTimeout bounds the processing of one callback, independent of the
// caller's connection.
const ProcessTimeout = 15 * time.Second

// SignatureHeaders are checked in order; the first non-empty one is used.
var SignatureHeaders = []string{"X-Webhook-Signature", "X-Signature", "X-Hub-Signature-256"}

// SignatureFrom returns the first signature header present.
func SignatureFrom(get func(key string) string) string {
	for _, h := range SignatureHeaders {
		if v := strings.TrimSpace(get(h)); v != "" {
			return v
		}
	}
	return ""
}

// Orchestrator is the part of the payment orchestrator the ingress drives.
type Orchestrator interface {
	Find(ctx context.Context, paymentID, externalRef string) (*models.Payment, error)
	Transition(ctx context.Context, req payment.TransitionRequest) (*models.Payment, error)
}

// Recorder stores webhook log rows.
type Recorder interface {
	LogWebhook(ctx context.Context, entry *models.WebhookLog)
}

// Archiver keeps a copy of raw bodies.
type Archiver interface {
	Archive(ctx context.Context, provider, correlationID string, body []byte) error
}

// Meta describes the HTTP request a callback arrived on.
type Meta struct {
	CorrelationID string
	Headers       map[string]string
}

// Outcome is the result of Receive. Status is the HTTP status to answer with.
type Outcome struct {
	Status    int
	Result    string
	PaymentID string
	Message   string
}

type Ingress struct {
	secrets  func(provider string) string
	orch     Orchestrator
	recorder Recorder
	archiver Archiver
}

// NewIngress wires the ingress. secrets resolves a provider's shared secret;
// archiver may be nil.
func NewIngress(secrets func(provider string) string, orch Orchestrator, recorder Recorder, archiver Archiver) *Ingress {
	return &Ingress{secrets: secrets, orch: orch, recorder: recorder, archiver: archiver}
}

type event struct {
	PaymentID         string
	ExternalPaymentID string
	TransactionID     string
	Status            models.PaymentStatus
	EventID           string
	Message           string
}

// reference is the provider-side identifier used when no payment id is sent.
func (e event) reference() string {
	if e.ExternalPaymentID != "" {
		return e.ExternalPaymentID
	}
	return e.TransactionID
}

// Receive verifies the signature over the exact raw body and, when it
// matches, applies the reported status. Every call writes one WebhookLog row.
func (i *Ingress) Receive(ctx context.Context, rawBody []byte, signatureHeader, provider string, meta Meta) Outcome {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ProcessTimeout)
	defer cancel()

	provider = strings.ToLower(strings.TrimSpace(provider))
	entry := &models.WebhookLog{
		Provider:      provider,
		Payload:       string(rawBody),
		Headers:       headersJSON(meta.Headers),
		Signature:     truncate(strings.TrimSpace(signatureHeader), 200),
		CorrelationID: meta.CorrelationID,
	}

	out := i.process(ctx, rawBody, signatureHeader, provider, meta, entry)
	entry.Outcome = out.Result
	if out.Status != http.StatusOK && entry.ErrorMessage == "" {
		entry.ErrorMessage = out.Message
	}
	if i.recorder != nil {
		i.recorder.LogWebhook(ctx, entry)
	}

	if i.archiver != nil {
		if err := i.archiver.Archive(ctx, provider, meta.CorrelationID, rawBody); err != nil {
			log.Warnf("[Webhook] %v", err)
		}
	}
	return out
}

func (i *Ingress) process(ctx context.Context, rawBody []byte, signatureHeader, provider string, meta Meta, entry *models.WebhookLog) Outcome {
	secret := ""
	if i.secrets != nil {
		secret = i.secrets(provider)
	}
	if secret == "" {
		log.Warnf("[Webhook] No secret configured for provider %s", provider)
		return Outcome{Status: http.StatusUnauthorized, Result: models.WebhookOutcomeInvalidSignature, Message: "signature cannot be verified"}
	}
	if !signature.Verify(rawBody, signatureHeader, secret) {
		log.Warnf("[Webhook] Invalid signature from provider %s (request %s)", provider, meta.CorrelationID)
		return Outcome{Status: http.StatusUnauthorized, Result: models.WebhookOutcomeInvalidSignature, Message: "invalid signature"}
	}
	entry.SignatureValid = true

	ev, err := parseEvent(rawBody)
	if err != nil {
		return Outcome{Status: http.StatusBadRequest, Result: models.WebhookOutcomeInvalidPayload, Message: err.Error()}
	}
	entry.ProviderEventID = truncate(ev.EventID, 191)
	entry.PaymentID = ev.PaymentID

	var p *models.Payment
	if ev.PaymentID != "" {
		p, err = i.orch.Find(ctx, ev.PaymentID, "")
	} else {
		p, err = i.orch.Find(ctx, "", ev.reference())
	}
	if err != nil {
		return errorOutcome(err, ev.PaymentID, entry)
	}
	entry.PaymentID = p.PaymentID

	message := "webhook " + provider
	if ev.EventID != "" {
		message += " event " + ev.EventID
	}
	if ev.Message != "" {
		message += ": " + ev.Message
	}

	updated, err := i.orch.Transition(ctx, payment.TransitionRequest{
		PaymentID:            p.PaymentID,
		Status:               ev.Status,
		GatewayTransactionID: ev.TransactionID,
		ExternalPaymentID:    ev.ExternalPaymentID,
		Source:               models.EventSourceWebhook,
		CorrelationID:        meta.CorrelationID,
		Message:              message,
	})
	if err != nil {
		return errorOutcome(err, p.PaymentID, entry)
	}

	log.Infof("[Webhook] Payment %s is now %s (provider %s)", updated.PaymentID, updated.Status, provider)
	return Outcome{Status: http.StatusOK, Result: models.WebhookOutcomeProcessed, PaymentID: updated.PaymentID, Message: "payment " + string(updated.Status)}
}

// errorOutcome acknowledges callbacks that can never succeed so the provider
// stops retrying them.
func errorOutcome(err error, paymentID string, entry *models.WebhookLog) Outcome {
	entry.ErrorMessage = err.Error()
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		log.Warnf("[Webhook] Unknown payment %s: %v", paymentID, err)
		return Outcome{Status: http.StatusOK, Result: models.WebhookOutcomeNotFound, PaymentID: paymentID, Message: "payment not found"}
	case errors.Is(err, apperror.ErrInvalidTransition):
		log.Warnf("[Webhook] Ignoring transition for payment %s: %v", paymentID, err)
		return Outcome{Status: http.StatusOK, Result: models.WebhookOutcomeInvalidTransition, PaymentID: paymentID, Message: "transition not applicable"}
	case errors.Is(err, apperror.ErrValidation):
		return Outcome{Status: http.StatusBadRequest, Result: models.WebhookOutcomeInvalidPayload, PaymentID: paymentID, Message: err.Error()}
	default:
		log.Errorf("[Webhook] Failed to process callback for payment %s: %v", paymentID, err)
		return Outcome{Status: http.StatusInternalServerError, Result: models.WebhookOutcomeError, PaymentID: paymentID, Message: "webhook processing failed"}
	}
}

// parseEvent extracts the fields the ingress needs. Providers that wrap the
// event in a "data" object are supported.
func parseEvent(body []byte) (event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return event{}, apperror.NewValidationError("body", "payload must be a JSON object")
	}
	if raw, ok := fields["data"]; ok {
		var nested map[string]json.RawMessage
		if json.Unmarshal(raw, &nested) == nil && nested != nil {
			for k, v := range fields {
				if _, exists := nested[k]; !exists && k != "data" {
					nested[k] = v
				}
			}
			fields = nested
		}
	}

	ev := event{
		PaymentID:         str(fields, "paymentId", "payment_id", "reference"),
		ExternalPaymentID: str(fields, "externalPaymentId", "external_payment_id"),
		TransactionID:     str(fields, "transactionId", "transaction_id", "gatewayTransactionId"),
		EventID:           str(fields, "eventId", "event_id", "id"),
		Message:           str(fields, "message", "description"),
	}
	if ev.PaymentID == "" && ev.reference() == "" {
		return event{}, apperror.NewValidationError("paymentId", "paymentId, externalPaymentId or transactionId is required")
	}

	rawStatus := str(fields, "status", "state")
	status, ok := gateway.NormalizeStatus(rawStatus)
	if !ok {
		return event{}, apperror.NewValidationError("status", "unknown status "+strconv.Quote(rawStatus))
	}
	ev.Status = status
	return ev, nil
}

func str(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		var n json.Number
		if json.Unmarshal(bytes.TrimSpace(raw), &n) == nil {
			return n.String()
		}
	}
	return ""
}

func headersJSON(headers map[string]string) datatypes.JSON {
	if len(headers) == 0 {
		return nil
	}
	raw, err := json.Marshal(headers)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
