// Package gateway maps payment-method tags to dispatch strategies. A strategy
// receives a copy of the payment and reports what happened; it never writes
// to the store.
package gateway

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/config"
)

// Result is what a strategy reports back to the orchestrator.
type Result struct {
	// Status is the state the payment should end up in. Pending means no
	// definitive gateway outcome yet.
	Status               models.PaymentStatus
	GatewayTransactionID string
	ExternalPaymentID    string
	Link                 string
	ResponseType         models.ResponseType
	Message              string
}

// Strategy dispatches a payment to one payment method.
type Strategy interface {
	Name() string
	Dispatch(ctx context.Context, payment models.Payment) (Result, error)
}

// Validator is implemented by strategies with method-specific input
// requirements that must hold before a payment is stored or claimed.
type Validator interface {
	Validate(payment models.Payment) error
}

// Registry resolves method tags. Tags are matched case-insensitively and
// unknown tags resolve to the fallback strategy.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	fallback   Strategy
}

func NewRegistry(fallback Strategy) *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
		fallback:   fallback,
	}
}

// Register binds tags to s. The empty tag is allowed and selects the strategy
// for payments without a method.
func (r *Registry) Register(s Strategy, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tag := range tags {
		r.strategies[NormalizeTag(tag)] = s
	}
}

func (r *Registry) Resolve(tag string) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.strategies[NormalizeTag(tag)]; ok {
		return s
	}
	return r.fallback
}

// Tags lists the registered tags.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.strategies))
	for tag := range r.strategies {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// NewDefaultRegistry wires the built-in strategies from configuration.
func NewDefaultRegistry(cfg *config.Config) *Registry {
	manual := NewManual()
	r := NewRegistry(manual)

	r.Register(NewMobileMoney(MobileMoneyOptions{
		Endpoint: cfg.MobileMoney.URL,
		APIKey:   cfg.MobileMoney.APIKey,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.GatewayTimeout,
	}), MobileMoneyTags...)
	r.Register(NewHostedForm(cfg.BaseURL), "", "form", "hosted")
	r.Register(NewCardRedirect(cfg.BaseURL, cfg.CardCheckoutURL), "card", "visa", "mastercard")
	r.Register(manual, "cash", "cod", "cash_on_delivery", "manual", "test")
	return r
}

func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// NormalizeStatus maps a provider status word onto the payment lifecycle.
// The second return value is false for words the service does not know.
func NormalizeStatus(raw string) (models.PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "created", "initiated":
		return models.PaymentStatusPending, true
	case "accepted", "processing", "in_progress":
		return models.PaymentStatusProcessing, true
	case "success", "successful", "succeeded", "completed", "approved", "paid":
		return models.PaymentStatusApproved, true
	case "failed", "failure", "declined", "rejected", "error", "expired":
		return models.PaymentStatusFailed, true
	case "cancelled", "canceled":
		return models.PaymentStatusCancelled, true
	case "refunded", "reversed":
		return models.PaymentStatusRefunded, true
	default:
		return "", false
	}
}

// FormLink returns the absolute hosted-form URL of a payment.
func FormLink(baseURL, paymentID string) string {
	return strings.TrimRight(baseURL, "/") + "/payment-form/" + url.PathEscape(paymentID)
}
