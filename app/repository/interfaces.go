package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
)

// ErrStatusConflict is returned when a conditional update finds the payment
// in a different status than the caller observed.
var ErrStatusConflict = fmt.Errorf("payment status changed concurrently: %w", apperror.ErrInvalidTransition)

// PaymentFilter narrows ListPayments. Zero values are ignored.
type PaymentFilter struct {
	Status        models.PaymentStatus
	Method        string
	Gateway       string
	CustomerPhone string
	OrderID       string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
}

// Page selects a 1-based page of results.
type Page struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset returns the row offset of the page.
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Number - 1) * n.Size
}

// TransitionInput describes a conditional status change. Path lists the
// statuses to pass through after From, in order; the last element is the new
// status. An empty Path only records the annotations while the payment is
// still in From.
type TransitionInput struct {
	PaymentID            string
	From                 models.PaymentStatus
	Path                 []models.PaymentStatus
	GatewayTransactionID string
	ExternalPaymentID    string
	Link                 string
	ResponseType         models.ResponseType
	PaymentMethod        string
	Gateway              string
	CustomerPhone        string
	Source               string
	CorrelationID        string
	Message              string
}

// PaymentRepository stores payments and their lifecycle events.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *models.Payment) (bool, *models.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	FindPayment(ctx context.Context, paymentID, externalRef string) (*models.Payment, error)
	ApplyTransition(ctx context.Context, in TransitionInput) (*models.Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter, page Page) ([]models.Payment, int64, error)
	ListEvents(ctx context.Context, paymentID string) ([]models.PaymentEvent, error)
	GetStatistics(ctx context.Context) (*models.PaymentStatistics, error)
}

// LogRepository stores insert-only log rows. Entries must be pointers.
type LogRepository interface {
	SaveLog(ctx context.Context, entry models.LogEntry) error
	ListWebhookLogs(ctx context.Context, paymentID string, limit int) ([]models.WebhookLog, error)
}

// OrderRepository mirrors upstream orders.
type OrderRepository interface {
	UpsertOrder(ctx context.Context, order *models.PlayfoodOrder) error
	GetOrder(ctx context.Context, orderID string) (*models.PlayfoodOrder, error)
}

// Store is the persistence gateway: one logical view over payments, logs and
// mirrored orders.
type Store interface {
	PaymentRepository
	LogRepository
	OrderRepository
}

// Repositories struct holds all repository instances
type Repositories struct {
	Payment PaymentRepository
	Log     LogRepository
	Order   OrderRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Payment: NewPaymentRepository(db),
		Log:     NewLogRepository(db),
		Order:   NewOrderRepository(db),
	}
}

type store struct {
	PaymentRepository
	LogRepository
	OrderRepository
}

// NewStore composes the GORM repositories into the authoritative Store.
func NewStore(db *gorm.DB) Store {
	repos := NewRepositories(db)
	return &store{
		PaymentRepository: repos.Payment,
		LogRepository:     repos.Log,
		OrderRepository:   repos.Order,
	}
}

func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, apperror.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, apperror.ErrPersistence, err)
}
