package payment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
	"github.com/ManuelReschke/PayFox/internal/pkg/config"
	"github.com/ManuelReschke/PayFox/internal/pkg/gateway"
	"github.com/ManuelReschke/PayFox/internal/pkg/testutil"
)

const baseURL = "https://pay.example.com"

// countingStrategy wraps a strategy and counts dispatches.
type countingStrategy struct {
	gateway.Strategy
	calls atomic.Int32
}

func (c *countingStrategy) Dispatch(ctx context.Context, p models.Payment) (gateway.Result, error) {
	c.calls.Add(1)
	return c.Strategy.Dispatch(ctx, p)
}

type stubStrategy struct {
	name   string
	result gateway.Result
	err    error
	delay  time.Duration
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Dispatch(ctx context.Context, _ models.Payment) (gateway.Result, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return gateway.Result{}, ctx.Err()
		}
	}
	return s.result, s.err
}

type fixture struct {
	orch  *Orchestrator
	store repository.Store
	form  *countingStrategy
}

func newFixture(t *testing.T, extra ...func(r *gateway.Registry)) *fixture {
	t.Helper()
	cfg := &config.Config{BaseURL: baseURL, DefaultCurrency: "MZN", GatewayTimeout: time.Second}
	registry := gateway.NewDefaultRegistry(cfg)
	form := &countingStrategy{Strategy: gateway.NewHostedForm(baseURL)}
	registry.Register(form, "", "form", "hosted")
	for _, fn := range extra {
		fn(registry)
	}

	store := repository.NewStore(testutil.NewTestDB(t))
	return &fixture{orch: NewOrchestrator(store, registry, cfg), store: store, form: form}
}

func TestCreate_HostedFormLink(t *testing.T) {
	f := newFixture(t)

	p, res, err := f.orch.Create(context.Background(), []byte(`{"amount": 25.00, "currency": "MZN", "customer": {"phone": "+258841234567"}}`), "corr-1")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "form", res.Strategy)

	assert.NotEmpty(t, p.PaymentID)
	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.Equal(t, models.ResponseTypeInternalForm, p.ResponseType)
	assert.True(t, strings.HasPrefix(p.Link, "https://"), p.Link)
	assert.Contains(t, p.Link, "/payment-form/"+p.PaymentID)
	assert.Equal(t, "corr-1", p.CorrelationID)
}

func TestCreate_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"paymentId": "pay-42", "amount": 25.00, "currency": "MZN", "customer": {"phone": "+258841234567"}}`)

	first, res1, err := f.orch.Create(context.Background(), body, "c1")
	require.NoError(t, err)
	second, res2, err := f.orch.Create(context.Background(), body, "c2")
	require.NoError(t, err)

	assert.True(t, res1.Created)
	assert.False(t, res2.Created)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.Link, second.Link)
	assert.Equal(t, int32(1), f.form.calls.Load(), "second create must not dispatch again")

	_, total, err := f.store.ListPayments(context.Background(), repository.PaymentFilter{}, repository.Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestCreate_ConcurrentSameID(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"paymentId": "pay-race", "amount": 10}`)

	var wg sync.WaitGroup
	var created atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, res, err := f.orch.Create(context.Background(), body, "")
			if assert.NoError(t, err) && res.Created {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(1), f.form.calls.Load())
}

func TestCreate_ValidationErrorStoresNothing(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.orch.Create(context.Background(), []byte(`{"currency": "BRL"}`), "")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, _, err = f.orch.Create(context.Background(), []byte(`{"amount": 10, "paymentMethod": "mpesa"}`), "")
	assert.ErrorIs(t, err, apperror.ErrValidation, "mobile money needs a phone")

	_, total, err := f.store.ListPayments(context.Background(), repository.PaymentFilter{}, repository.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCreate_SandboxMobileMoney(t *testing.T) {
	f := newFixture(t)

	p, _, err := f.orch.Create(context.Background(), []byte(`{"amount": 100, "paymentMethod": "mpesa", "customer": {"phone": "+258841234567"}}`), "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusProcessing, p.Status)
	assert.Equal(t, "mobile_money", p.Gateway)
	assert.True(t, strings.HasPrefix(p.TransactionID(), "sandbox-"))
	assert.Equal(t, models.ResponseTypeDirect, p.ResponseType)
}

func TestCreate_DefinitiveOutcome(t *testing.T) {
	f := newFixture(t, func(r *gateway.Registry) {
		r.Register(&stubStrategy{name: "instant", result: gateway.Result{
			Status:               models.PaymentStatusApproved,
			GatewayTransactionID: "tx-1",
			ResponseType:         models.ResponseTypeDirect,
		}}, "instant")
	})

	p, _, err := f.orch.Create(context.Background(), []byte(`{"amount": 5, "paymentMethod": "instant"}`), "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, p.Status)
	assert.NotNil(t, p.CompletedAt)

	events, err := f.store.ListEvents(context.Background(), p.PaymentID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, models.PaymentStatusProcessing, events[1].ToStatus)
	assert.Equal(t, models.PaymentStatusApproved, events[2].ToStatus)
}

func TestCreate_DispatchFailureMarksFailed(t *testing.T) {
	f := newFixture(t, func(r *gateway.Registry) {
		r.Register(&stubStrategy{name: "broken", err: errors.New("connection reset")}, "broken")
		r.Register(&stubStrategy{name: "slow", delay: 5 * time.Second}, "slow")
	})

	for _, method := range []string{"broken", "slow"} {
		t.Run(method, func(t *testing.T) {
			p, _, err := f.orch.Create(context.Background(), []byte(`{"amount": 5, "paymentMethod": "`+method+`"}`), "")
			assert.ErrorIs(t, err, apperror.ErrGateway)
			require.NotNil(t, p)
			assert.Equal(t, models.PaymentStatusFailed, p.Status)

			stored, err := f.orch.GetStatus(context.Background(), p.PaymentID)
			require.NoError(t, err)
			assert.Equal(t, models.PaymentStatusFailed, stored.Status)
		})
	}
}

func TestTransition_WebhookApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _, err := f.orch.Create(ctx, []byte(`{"paymentId": "pay-7", "amount": 12}`), "")
	require.NoError(t, err)

	updated, err := f.orch.Transition(ctx, TransitionRequest{
		PaymentID:            p.PaymentID,
		Status:               models.PaymentStatusApproved,
		GatewayTransactionID: "MP-77",
		Source:               models.EventSourceWebhook,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, updated.Status)

	status, err := f.orch.GetStatus(ctx, "pay-7")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, status.Status)
	assert.Equal(t, "MP-77", status.TransactionID())
}

func TestTransition_RejectsInvalidPairs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.orch.Create(ctx, []byte(`{"paymentId": "pay-8", "amount": 12}`), "")
	require.NoError(t, err)
	_, err = f.orch.Transition(ctx, TransitionRequest{PaymentID: "pay-8", Status: models.PaymentStatusApproved})
	require.NoError(t, err)

	for _, target := range []models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusApproved, models.PaymentStatusProcessing, models.PaymentStatusCancelled, models.PaymentStatusFailed} {
		p, err := f.orch.Transition(ctx, TransitionRequest{PaymentID: "pay-8", Status: target})
		assert.ErrorIs(t, err, apperror.ErrInvalidTransition, string(target))

		var terr *TransitionError
		require.True(t, errors.As(err, &terr))
		assert.Equal(t, models.PaymentStatusApproved, terr.From)
		assert.Equal(t, models.PaymentStatusApproved, p.Status)
	}

	stored, err := f.orch.GetStatus(ctx, "pay-8")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, stored.Status)

	refunded, err := f.orch.Refund(ctx, "pay-8", "", "customer request")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.Status)

	_, err = f.orch.Cancel(ctx, "pay-8", "", "")
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestTransition_UnknownPaymentAndStatus(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Transition(context.Background(), TransitionRequest{PaymentID: "missing", Status: models.PaymentStatusApproved})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.orch.Transition(context.Background(), TransitionRequest{PaymentID: "missing", Status: "teleported"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestTransition_ConcurrentFinalStatesOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.orch.Create(ctx, []byte(`{"paymentId": "pay-race-2", "amount": 3}`), "")
	require.NoError(t, err)

	targets := []models.PaymentStatus{models.PaymentStatusApproved, models.PaymentStatusFailed, models.PaymentStatusApproved, models.PaymentStatusFailed}
	var wg sync.WaitGroup
	var wins atomic.Int32
	for _, target := range targets {
		wg.Add(1)
		go func(target models.PaymentStatus) {
			defer wg.Done()
			_, err := f.orch.Transition(ctx, TransitionRequest{PaymentID: "pay-race-2", Status: target, Source: models.EventSourceWebhook})
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
		}(target)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	events, err := f.store.ListEvents(ctx, "pay-race-2")
	require.NoError(t, err)
	assert.Len(t, events, 3, "created, processing, final")
}

func TestProcess_ClaimsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.orch.Create(ctx, []byte(`{"paymentId": "pay-9", "amount": 50}`), "")
	require.NoError(t, err)

	_, err = f.orch.Process(ctx, "pay-9", "mpesa", ProcessOverrides{})
	assert.ErrorIs(t, err, apperror.ErrValidation, "phone is required")

	p, err := f.orch.Process(ctx, "pay-9", "MPESA", ProcessOverrides{CustomerPhone: "+258841234567"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusProcessing, p.Status)
	assert.Equal(t, "mpesa", p.Method())
	assert.Equal(t, "mobile_money", p.Gateway)
	assert.Equal(t, "+258841234567", p.CustomerPhone)
	assert.NotEmpty(t, p.TransactionID())

	_, err = f.orch.Process(ctx, "pay-9", "mpesa", ProcessOverrides{CustomerPhone: "+258841234567"})
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	_, err = f.orch.Process(ctx, "nope", "mpesa", ProcessOverrides{})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestInfo_ByExternalReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := `{"paymentId": "pay-10", "amount": 395, "orderDetails": {"orderId": "ord-10",
		"items": [{"name": "Matapa", "quantity": 2, "unitPrice": 150, "totalPrice": 310}]}}`
	_, _, err := f.orch.Create(ctx, []byte(body), "")
	require.NoError(t, err)

	info, err := f.orch.Info(ctx, "pay-10", "ord-10")
	require.NoError(t, err)
	assert.Equal(t, "pay-10", info.Payment.PaymentID)
	assert.NotEmpty(t, info.Events)
	require.NotNil(t, info.Order)
	require.Len(t, info.Order.Items, 1)
	assert.True(t, info.Order.Items[0].PriceMismatch)

	_, err = f.orch.Info(ctx, "pay-10", "unrelated")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	for _, tc := range []struct{ id, ref string }{{"", "ord-10"}, {"pay-10", ""}, {" ", " "}} {
		_, err = f.orch.Info(ctx, tc.id, tc.ref)
		assert.ErrorIs(t, err, apperror.ErrValidation, "id=%q ref=%q", tc.id, tc.ref)
	}
}

func TestPlanTransition(t *testing.T) {
	tests := []struct {
		from, to models.PaymentStatus
		path     []models.PaymentStatus
	}{
		{models.PaymentStatusPending, models.PaymentStatusProcessing, []models.PaymentStatus{models.PaymentStatusProcessing}},
		{models.PaymentStatusPending, models.PaymentStatusApproved, []models.PaymentStatus{models.PaymentStatusProcessing, models.PaymentStatusApproved}},
		{models.PaymentStatusPending, models.PaymentStatusFailed, []models.PaymentStatus{models.PaymentStatusProcessing, models.PaymentStatusFailed}},
		{models.PaymentStatusPending, models.PaymentStatusCancelled, []models.PaymentStatus{models.PaymentStatusCancelled}},
		{models.PaymentStatusProcessing, models.PaymentStatusApproved, []models.PaymentStatus{models.PaymentStatusApproved}},
		{models.PaymentStatusProcessing, models.PaymentStatusCancelled, []models.PaymentStatus{models.PaymentStatusCancelled}},
		{models.PaymentStatusApproved, models.PaymentStatusRefunded, []models.PaymentStatus{models.PaymentStatusRefunded}},
	}
	for _, tt := range tests {
		path, ok := PlanTransition(tt.from, tt.to)
		assert.True(t, ok, "%s -> %s", tt.from, tt.to)
		assert.Equal(t, tt.path, path)
	}

	allowed := map[[2]models.PaymentStatus]bool{}
	for _, tt := range tests {
		allowed[[2]models.PaymentStatus{tt.from, tt.to}] = true
	}
	for _, from := range models.AllPaymentStatuses {
		for _, to := range models.AllPaymentStatuses {
			if allowed[[2]models.PaymentStatus{from, to}] {
				continue
			}
			assert.False(t, CanTransition(from, to), "%s -> %s must be rejected", from, to)
		}
	}
}
