package webhook

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/audit"
	"github.com/ManuelReschke/PayFox/internal/pkg/config"
	"github.com/ManuelReschke/PayFox/internal/pkg/gateway"
	"github.com/ManuelReschke/PayFox/internal/pkg/payment"
	"github.com/ManuelReschke/PayFox/internal/pkg/signature"
	"github.com/ManuelReschke/PayFox/internal/pkg/testutil"
)

const secret = "whsec_test"

type archiveCall struct {
	provider, correlationID string
	body                    []byte
}

type fakeArchiver struct {
	calls []archiveCall
	err   error
}

func (f *fakeArchiver) Archive(_ context.Context, provider, correlationID string, body []byte) error {
	f.calls = append(f.calls, archiveCall{provider, correlationID, body})
	return f.err
}

type brokenOrchestrator struct{}

func (brokenOrchestrator) Find(context.Context, string, string) (*models.Payment, error) {
	return nil, errors.New("db down")
}

func (brokenOrchestrator) Transition(context.Context, payment.TransitionRequest) (*models.Payment, error) {
	return nil, errors.New("db down")
}

type fixture struct {
	ingress  *Ingress
	orch     *payment.Orchestrator
	db       *gorm.DB
	archiver *fakeArchiver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	store := repository.NewStore(db)
	cfg := &config.Config{
		BaseURL:              "https://pay.example.com",
		DefaultCurrency:      "MZN",
		GatewayTimeout:       time.Second,
		WebhookSecrets:       map[string]string{"mpesa": secret},
		DefaultWebhookSecret: "",
	}
	orch := payment.NewOrchestrator(store, gateway.NewDefaultRegistry(cfg), cfg)
	archiver := &fakeArchiver{}
	return &fixture{
		ingress:  NewIngress(cfg.WebhookSecret, orch, audit.NewLogger(store), archiver),
		orch:     orch,
		db:       db,
		archiver: archiver,
	}
}

func (f *fixture) create(t *testing.T, id string) {
	t.Helper()
	_, _, err := f.orch.Create(context.Background(), []byte(`{"paymentId": "`+id+`", "amount": 25}`), "")
	require.NoError(t, err)
}

func (f *fixture) lastLog(t *testing.T) models.WebhookLog {
	t.Helper()
	var entry models.WebhookLog
	require.NoError(t, f.db.Order("id DESC").First(&entry).Error)
	return entry
}

func TestReceive_ValidSignatureApproves(t *testing.T) {
	f := newFixture(t)
	f.create(t, "pay-1")

	body := []byte(`{"paymentId":"pay-1","status":"success","transactionId":"MP-1","eventId":"evt-1"}`)
	out := f.ingress.Receive(context.Background(), body, signature.Sign(body, secret), "MPESA", Meta{CorrelationID: "req-1"})

	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, models.WebhookOutcomeProcessed, out.Result)

	p, err := f.orch.GetStatus(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, p.Status)
	assert.Equal(t, "MP-1", p.TransactionID())

	entry := f.lastLog(t)
	assert.True(t, entry.SignatureValid)
	assert.Equal(t, "mpesa", entry.Provider)
	assert.Equal(t, "evt-1", entry.ProviderEventID)
	assert.Equal(t, "pay-1", entry.PaymentID)
	assert.Equal(t, string(body), entry.Payload)
	assert.Equal(t, "req-1", entry.CorrelationID)

	require.Len(t, f.archiver.calls, 1)
	assert.Equal(t, body, f.archiver.calls[0].body)
}

func TestReceive_InvalidSignatureChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.create(t, "pay-2")

	body := []byte(`{"paymentId":"pay-2","status":"approved"}`)
	tampered := []byte(`{"paymentId":"pay-2","status":"approvedX"}`)

	for name, header := range map[string]string{
		"wrong secret":   signature.Sign(body, "other"),
		"other payload":  signature.Sign(tampered, secret),
		"missing header": "",
		"no prefix":      signature.Sign(body, secret)[len(signature.Prefix):],
	} {
		t.Run(name, func(t *testing.T) {
			out := f.ingress.Receive(context.Background(), body, header, "mpesa", Meta{})
			assert.Equal(t, http.StatusUnauthorized, out.Status)
			assert.Equal(t, models.WebhookOutcomeInvalidSignature, out.Result)

			entry := f.lastLog(t)
			assert.False(t, entry.SignatureValid)
			assert.Equal(t, models.WebhookOutcomeInvalidSignature, entry.Outcome)

			p, err := f.orch.GetStatus(context.Background(), "pay-2")
			require.NoError(t, err)
			assert.Equal(t, models.PaymentStatusPending, p.Status)
		})
	}
}

func TestReceive_UnknownProviderWithoutSecret(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"paymentId":"pay-x","status":"approved"}`)

	out := f.ingress.Receive(context.Background(), body, signature.Sign(body, ""), "emola", Meta{})
	assert.Equal(t, http.StatusUnauthorized, out.Status)
}

func TestReceive_AcknowledgesUnprocessable(t *testing.T) {
	f := newFixture(t)
	f.create(t, "pay-3")

	// approve first so the second approval is an invalid transition
	approve := []byte(`{"payment_id":"pay-3","status":"paid"}`)
	require.Equal(t, http.StatusOK, f.ingress.Receive(context.Background(), approve, signature.Sign(approve, secret), "mpesa", Meta{}).Status)

	tests := []struct {
		name   string
		body   string
		status int
		result string
	}{
		{"unknown payment", `{"paymentId":"nope","status":"approved"}`, http.StatusOK, models.WebhookOutcomeNotFound},
		{"unknown external reference", `{"transactionId":"ghost","status":"approved"}`, http.StatusOK, models.WebhookOutcomeNotFound},
		{"regression", `{"paymentId":"pay-3","status":"pending"}`, http.StatusOK, models.WebhookOutcomeInvalidTransition},
		{"duplicate delivery", `{"paymentId":"pay-3","status":"approved"}`, http.StatusOK, models.WebhookOutcomeInvalidTransition},
		{"not json", `status=approved`, http.StatusBadRequest, models.WebhookOutcomeInvalidPayload},
		{"unknown status", `{"paymentId":"pay-3","status":"teleported"}`, http.StatusBadRequest, models.WebhookOutcomeInvalidPayload},
		{"no identifier", `{"status":"approved"}`, http.StatusBadRequest, models.WebhookOutcomeInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := []byte(tt.body)
			out := f.ingress.Receive(context.Background(), body, signature.Sign(body, secret), "mpesa", Meta{})
			assert.Equal(t, tt.status, out.Status)
			assert.Equal(t, tt.result, out.Result)
			assert.Equal(t, tt.result, f.lastLog(t).Outcome)
		})
	}

	p, err := f.orch.GetStatus(context.Background(), "pay-3")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, p.Status)
}

func TestReceive_NestedDataAndExternalReference(t *testing.T) {
	f := newFixture(t)
	f.create(t, "pay-4")
	_, err := f.orch.Transition(context.Background(), payment.TransitionRequest{
		PaymentID:         "pay-4",
		Status:            models.PaymentStatusProcessing,
		ExternalPaymentID: "ext-4",
	})
	require.NoError(t, err)

	body := []byte(`{"event_id":"evt-9","data":{"externalPaymentId":"ext-4","status":"declined"}}`)
	out := f.ingress.Receive(context.Background(), body, signature.Sign(body, secret), "mpesa", Meta{})
	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, "pay-4", out.PaymentID)

	p, err := f.orch.GetStatus(context.Background(), "pay-4")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	assert.Equal(t, "evt-9", f.lastLog(t).ProviderEventID)
}

func TestReceive_PersistenceFailure(t *testing.T) {
	archiver := &fakeArchiver{err: errors.New("s3 down")}
	ingress := NewIngress(func(string) string { return secret }, brokenOrchestrator{}, nil, archiver)

	body := []byte(`{"paymentId":"pay-5","status":"approved"}`)
	out := ingress.Receive(context.Background(), body, signature.Sign(body, secret), "mpesa", Meta{})
	assert.Equal(t, http.StatusInternalServerError, out.Status)
	assert.Equal(t, models.WebhookOutcomeError, out.Result)
	assert.Len(t, archiver.calls, 1, "archive failures are ignored")
}

func TestSignatureFrom(t *testing.T) {
	headers := map[string]string{"X-Hub-Signature-256": "sha256=bb", "X-Signature": "sha256=aa"}
	assert.Equal(t, "sha256=aa", SignatureFrom(func(k string) string { return headers[k] }))
	assert.Equal(t, "", SignatureFrom(func(string) string { return "" }))
}
