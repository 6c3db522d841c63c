package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
)

// MobileMoneyTags are the method tags served by the mobile-money strategy.
var MobileMoneyTags = []string{"mpesa", "emola", "mkesh", "mobile_money", "mobile-money"}

const defaultMobileMoneyTimeout = 15 * time.Second

type MobileMoneyOptions struct {
	// Endpoint of the provider push API. Empty runs the strategy in sandbox
	// mode.
	Endpoint string
	APIKey   string
	// BaseURL is used to build the provider callback URL.
	BaseURL string
	Timeout time.Duration

	HTTPClient *http.Client
}

// MobileMoney initiates a push payment on the customer's phone. Confirmation
// arrives later through the provider webhook.
type MobileMoney struct {
	endpoint string
	apiKey   string
	baseURL  string
	timeout  time.Duration
	client   *http.Client
}

func NewMobileMoney(opts MobileMoneyOptions) *MobileMoney {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultMobileMoneyTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &MobileMoney{
		endpoint: strings.TrimSpace(opts.Endpoint),
		apiKey:   opts.APIKey,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		timeout:  timeout,
		client:   client,
	}
}

func (m *MobileMoney) Name() string { return "mobile_money" }

// Sandbox reports whether no provider endpoint is configured.
func (m *MobileMoney) Sandbox() bool { return m.endpoint == "" }

func (m *MobileMoney) Validate(payment models.Payment) error {
	if strings.TrimSpace(payment.CustomerPhone) == "" {
		return apperror.NewValidationError("customer.phone", "phone number is required for mobile money payments")
	}
	return nil
}

type mobileMoneyRequest struct {
	PaymentID   string `json:"paymentId"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Phone       string `json:"phone"`
	Provider    string `json:"provider"`
	Reference   string `json:"reference,omitempty"`
	CallbackURL string `json:"callbackUrl"`
}

type mobileMoneyResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
	Reference     string `json:"reference"`
	Message       string `json:"message"`
}

func (m *MobileMoney) Dispatch(ctx context.Context, payment models.Payment) (Result, error) {
	if err := m.Validate(payment); err != nil {
		return Result{}, err
	}
	provider := providerFor(payment.Method())

	if m.Sandbox() {
		txID := "sandbox-" + uuid.NewString()
		log.Infof("[MobileMoney] Sandbox push for payment %s via %s: %s", payment.PaymentID, provider, txID)
		return Result{
			Status:               models.PaymentStatusProcessing,
			GatewayTransactionID: txID,
			ResponseType:         models.ResponseTypeDirect,
			Message:              "sandbox push initiated",
		}, nil
	}

	body, err := json.Marshal(mobileMoneyRequest{
		PaymentID:   payment.PaymentID,
		Amount:      payment.Amount.StringFixed(2),
		Currency:    payment.Currency,
		Phone:       payment.CustomerPhone,
		Provider:    provider,
		Reference:   payment.OrderID,
		CallbackURL: m.baseURL + "/webhooks/" + provider,
	})
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("%w: build request: %v", apperror.ErrGateway, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", payment.PaymentID)
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w: %s push timed out after %s", apperror.ErrGateway, provider, m.timeout)
		}
		return Result{}, fmt.Errorf("%w: %s push failed: %v", apperror.ErrGateway, provider, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("%w: %s push rejected: status=%d body=%s", apperror.ErrGateway, provider, resp.StatusCode, truncate(string(raw), 256))
	}

	var out mobileMoneyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("%w: %s push returned invalid JSON: %v", apperror.ErrGateway, provider, err)
	}

	status, ok := NormalizeStatus(out.Status)
	switch {
	case !ok:
		log.Warnf("[MobileMoney] Unknown provider status %q for payment %s, keeping it pending", out.Status, payment.PaymentID)
		status = models.PaymentStatusPending
	case status == models.PaymentStatusPending:
		status = models.PaymentStatusProcessing
	case status == models.PaymentStatusCancelled, status == models.PaymentStatusRefunded:
		status = models.PaymentStatusFailed
	}

	return Result{
		Status:               status,
		GatewayTransactionID: out.TransactionID,
		ExternalPaymentID:    out.Reference,
		ResponseType:         models.ResponseTypeDirect,
		Message:              out.Message,
	}, nil
}

// providerFor maps a method tag to the provider name used in callbacks.
func providerFor(method string) string {
	switch tag := NormalizeTag(method); tag {
	case "mpesa", "emola", "mkesh":
		return tag
	default:
		return "mobile_money"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
