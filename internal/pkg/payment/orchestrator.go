package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
	"github.com/ManuelReschke/PayFox/internal/pkg/config"
	"github.com/ManuelReschke/PayFox/internal/pkg/gateway"
)

// maxTransitionAttempts bounds re-planning after losing a compare-and-set.
const maxTransitionAttempts = 3

// CreateResult describes what Create did.
type CreateResult struct {
	// Created is false when a payment with the same id already existed. The
	// stored payment is returned and nothing is dispatched.
	Created bool
	// Strategy is the name of the strategy the payment was routed to.
	Strategy string
}

// TransitionRequest asks for a status change.
type TransitionRequest struct {
	PaymentID            string
	Status               models.PaymentStatus
	GatewayTransactionID string
	ExternalPaymentID    string
	Source               string
	CorrelationID        string
	Message              string
}

// ProcessOverrides replace payment fields for an explicit processing call.
type ProcessOverrides struct {
	CustomerPhone string
	CorrelationID string
}

// Info is the enriched view of a payment.
type Info struct {
	Payment  *models.Payment       `json:"payment"`
	Events   []models.PaymentEvent `json:"events"`
	Order    *models.PlayfoodOrder `json:"order,omitempty"`
	Webhooks []models.WebhookLog   `json:"webhooks"`
}

// Orchestrator owns the payment state machine. It is the only writer of
// payments; strategies only report results back to it.
type Orchestrator struct {
	store          repository.Store
	registry       *gateway.Registry
	validator      *Validator
	gatewayTimeout time.Duration
}

func NewOrchestrator(store repository.Store, registry *gateway.Registry, cfg *config.Config) *Orchestrator {
	timeout := cfg.GatewayTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Orchestrator{
		store:          store,
		registry:       registry,
		validator:      NewValidator(cfg.DefaultCurrency),
		gatewayTimeout: timeout,
	}
}

// Create validates body, stores a pending payment and dispatches it. A repeated
// create with a known payment id returns the stored payment without a second
// dispatch. When the dispatch fails the failed payment is returned together
// with an error wrapping apperror.ErrGateway.
func (o *Orchestrator) Create(ctx context.Context, body []byte, correlationID string) (*models.Payment, CreateResult, error) {
	req, err := o.validator.Parse(body)
	if err != nil {
		return nil, CreateResult{}, err
	}

	strategy := o.registry.Resolve(req.PaymentMethod)
	p := req.ToPayment()
	if p.PaymentID == "" {
		p.PaymentID = uuid.NewString()
	}
	p.Gateway = strategy.Name()
	p.CorrelationID = correlationID

	if v, ok := strategy.(gateway.Validator); ok {
		if err := v.Validate(*p); err != nil {
			return nil, CreateResult{}, err
		}
	}

	created, stored, err := o.store.CreatePayment(ctx, p)
	if err != nil {
		return nil, CreateResult{}, err
	}
	result := CreateResult{Created: created, Strategy: stored.Gateway}
	if !created {
		log.Infof("[Orchestrator] Payment %s already exists (status %s), skipping dispatch", stored.PaymentID, stored.Status)
		return stored, result, nil
	}

	if req.Order != nil {
		o.mirrorOrder(ctx, stored.PaymentID, req.Order)
	}

	res, dispatchErr := o.dispatch(ctx, strategy, *stored)
	updated, err := o.applyDispatch(ctx, stored, res, dispatchErr, correlationID)
	if err != nil {
		return stored, result, err
	}
	if dispatchErr != nil {
		return updated, result, dispatchErr
	}
	return updated, result, nil
}

// Process dispatches a pending payment through an explicitly chosen method.
// The payment is claimed with pending -> processing before the dispatch so
// concurrent calls dispatch at most once.
func (o *Orchestrator) Process(ctx context.Context, paymentID, method string, overrides ProcessOverrides) (*models.Payment, error) {
	current, err := o.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if current.Status != models.PaymentStatusPending {
		return current, &TransitionError{PaymentID: paymentID, From: current.Status, To: models.PaymentStatusProcessing}
	}

	method = gateway.NormalizeTag(method)
	strategy := o.registry.Resolve(method)

	candidate := *current
	if method != "" {
		candidate.PaymentMethod = &method
	}
	if phone := strings.TrimSpace(overrides.CustomerPhone); phone != "" {
		candidate.CustomerPhone = phone
	}
	candidate.Gateway = strategy.Name()

	if v, ok := strategy.(gateway.Validator); ok {
		if err := v.Validate(candidate); err != nil {
			return nil, err
		}
	}

	claimed, err := o.store.ApplyTransition(ctx, repository.TransitionInput{
		PaymentID:     paymentID,
		From:          models.PaymentStatusPending,
		Path:          []models.PaymentStatus{models.PaymentStatusProcessing},
		PaymentMethod: method,
		Gateway:       strategy.Name(),
		CustomerPhone: strings.TrimSpace(overrides.CustomerPhone),
		Source:        models.EventSourceAPI,
		CorrelationID: overrides.CorrelationID,
		Message:       "processing via " + strategy.Name(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			if fresh, gerr := o.store.GetPayment(ctx, paymentID); gerr == nil {
				return fresh, &TransitionError{PaymentID: paymentID, From: fresh.Status, To: models.PaymentStatusProcessing}
			}
		}
		return nil, err
	}

	res, dispatchErr := o.dispatch(ctx, strategy, *claimed)
	updated, err := o.applyDispatch(ctx, claimed, res, dispatchErr, overrides.CorrelationID)
	if err != nil {
		return claimed, err
	}
	return updated, dispatchErr
}

// Transition moves a payment to req.Status. The change is a compare-and-set
// on the status observed just before; a lost race is re-planned against the
// fresh status.
func (o *Orchestrator) Transition(ctx context.Context, req TransitionRequest) (*models.Payment, error) {
	if !req.Status.IsValid() {
		return nil, apperror.NewValidationError("status", fmt.Sprintf("unknown status %q", req.Status))
	}
	if req.Source == "" {
		req.Source = models.EventSourceAPI
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		current, err := o.store.GetPayment(ctx, req.PaymentID)
		if err != nil {
			return nil, err
		}

		path, ok := PlanTransition(current.Status, req.Status)
		if !ok {
			return current, &TransitionError{PaymentID: req.PaymentID, From: current.Status, To: req.Status}
		}

		updated, err := o.store.ApplyTransition(ctx, repository.TransitionInput{
			PaymentID:            req.PaymentID,
			From:                 current.Status,
			Path:                 path,
			GatewayTransactionID: req.GatewayTransactionID,
			ExternalPaymentID:    req.ExternalPaymentID,
			Source:               req.Source,
			CorrelationID:        req.CorrelationID,
			Message:              req.Message,
		})
		if errors.Is(err, repository.ErrStatusConflict) {
			log.Warnf("[Orchestrator] Status of payment %s changed concurrently, re-planning (attempt %d)", req.PaymentID, attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Infof("[Orchestrator] Payment %s: %s -> %s (%s)", req.PaymentID, current.Status, updated.Status, req.Source)
		return updated, nil
	}
	return nil, fmt.Errorf("payment %s kept changing after %d attempts: %w", req.PaymentID, maxTransitionAttempts, apperror.ErrInvalidTransition)
}

// Cancel moves a non-terminal payment to cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, paymentID, correlationID, reason string) (*models.Payment, error) {
	return o.Transition(ctx, TransitionRequest{
		PaymentID:     paymentID,
		Status:        models.PaymentStatusCancelled,
		Source:        models.EventSourceAPI,
		CorrelationID: correlationID,
		Message:       reason,
	})
}

// Refund moves an approved payment to refunded.
func (o *Orchestrator) Refund(ctx context.Context, paymentID, correlationID, reason string) (*models.Payment, error) {
	return o.Transition(ctx, TransitionRequest{
		PaymentID:     paymentID,
		Status:        models.PaymentStatusRefunded,
		Source:        models.EventSourceAPI,
		CorrelationID: correlationID,
		Message:       reason,
	})
}

// Find looks a payment up by id and/or external reference.
func (o *Orchestrator) Find(ctx context.Context, paymentID, externalRef string) (*models.Payment, error) {
	return o.store.FindPayment(ctx, paymentID, externalRef)
}

func (o *Orchestrator) GetStatus(ctx context.Context, paymentID string) (*models.Payment, error) {
	return o.store.GetPayment(ctx, strings.TrimSpace(paymentID))
}

// Info looks a payment up by id and external reference, both of which must
// match, and attaches its events, mirrored order and recent webhook attempts.
func (o *Orchestrator) Info(ctx context.Context, paymentID, externalRef string) (*Info, error) {
	paymentID, externalRef = strings.TrimSpace(paymentID), strings.TrimSpace(externalRef)
	if paymentID == "" {
		return nil, apperror.NewValidationError("paymentId", "paymentId is required")
	}
	if externalRef == "" {
		return nil, apperror.NewValidationError("externalReference", "externalReference is required")
	}

	p, err := o.store.FindPayment(ctx, paymentID, externalRef)
	if err != nil {
		return nil, err
	}

	info := &Info{Payment: p}
	if info.Events, err = o.store.ListEvents(ctx, p.PaymentID); err != nil {
		return nil, err
	}
	if info.Webhooks, err = o.store.ListWebhookLogs(ctx, p.PaymentID, 20); err != nil {
		return nil, err
	}
	if p.OrderID != "" {
		order, err := o.store.GetOrder(ctx, p.OrderID)
		switch {
		case err == nil:
			info.Order = order
		case !errors.Is(err, apperror.ErrNotFound):
			return nil, err
		}
	}
	return info, nil
}

func (o *Orchestrator) List(ctx context.Context, filter repository.PaymentFilter, page repository.Page) ([]models.Payment, int64, error) {
	return o.store.ListPayments(ctx, filter, page)
}

func (o *Orchestrator) Statistics(ctx context.Context) (*models.PaymentStatistics, error) {
	return o.store.GetStatistics(ctx)
}

// dispatch runs the strategy on a copy of the payment, bounded by the gateway
// timeout.
func (o *Orchestrator) dispatch(ctx context.Context, strategy gateway.Strategy, p models.Payment) (gateway.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.gatewayTimeout)
	defer cancel()

	res, err := strategy.Dispatch(ctx, p)
	if err != nil {
		log.Errorf("[Orchestrator] Dispatch of payment %s via %s failed: %v", p.PaymentID, strategy.Name(), err)
		if !errors.Is(err, apperror.ErrGateway) {
			err = fmt.Errorf("%w: %w", apperror.ErrGateway, err)
		}
		return gateway.Result{}, err
	}
	return res, nil
}

// applyDispatch records a dispatch outcome on a payment that was in p.Status
// when the dispatch started. It runs detached from the request context so an
// outcome the gateway already produced is never dropped.
func (o *Orchestrator) applyDispatch(ctx context.Context, p *models.Payment, res gateway.Result, dispatchErr error, correlationID string) (*models.Payment, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.gatewayTimeout)
	defer cancel()

	in := repository.TransitionInput{
		PaymentID:            p.PaymentID,
		From:                 p.Status,
		GatewayTransactionID: res.GatewayTransactionID,
		ExternalPaymentID:    res.ExternalPaymentID,
		Link:                 res.Link,
		ResponseType:         res.ResponseType,
		Source:               models.EventSourceGateway,
		CorrelationID:        correlationID,
		Message:              res.Message,
	}

	target := res.Status
	if dispatchErr != nil {
		target = models.PaymentStatusFailed
		in.Message = "dispatch failed: " + dispatchErr.Error()
	}
	if target == "" {
		target = models.PaymentStatusPending
	}
	if target == models.PaymentStatusCancelled || target == models.PaymentStatusRefunded {
		target = models.PaymentStatusFailed
	}

	// pending stays pending; a claimed payment stays processing until a
	// definitive outcome arrives
	if target != p.Status && !(target == models.PaymentStatusPending && p.Status == models.PaymentStatusProcessing) {
		path, ok := PlanTransition(p.Status, target)
		if !ok {
			return nil, &TransitionError{PaymentID: p.PaymentID, From: p.Status, To: target}
		}
		in.Path = path
	}

	updated, err := o.store.ApplyTransition(ctx, in)
	if errors.Is(err, repository.ErrStatusConflict) {
		// a webhook got there first; its status wins
		fresh, gerr := o.store.GetPayment(ctx, p.PaymentID)
		if gerr != nil {
			return nil, gerr
		}
		log.Warnf("[Orchestrator] Payment %s moved to %s during dispatch, keeping it", p.PaymentID, fresh.Status)
		return fresh, nil
	}
	if err != nil {
		log.Errorf("[Orchestrator] Failed to record dispatch outcome for payment %s: %v", p.PaymentID, err)
		return nil, err
	}
	return updated, nil
}

func (o *Orchestrator) mirrorOrder(ctx context.Context, paymentID string, order *models.PlayfoodOrder) {
	order.PaymentID = paymentID
	for i := range order.Items {
		item := &order.Items[i]
		if !item.CheckTotal() {
			item.PriceMismatch = true
			log.Warnf("[Orchestrator] Order %s item %q: total %s != %d x %s",
				order.OrderID, item.Name, item.TotalPrice, item.Quantity, item.UnitPrice)
		}
	}
	if err := o.store.UpsertOrder(ctx, order); err != nil {
		log.Errorf("[Orchestrator] Failed to mirror order %s: %v", order.OrderID, err)
	}
}
