package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
)

var errDuplicatePayment = errors.New("duplicate payment id")

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// CreatePayment inserts the payment together with its creation event. When a
// payment with the same payment_id already exists nothing is written and the
// stored row is returned with created=false.
func (r *paymentRepository) CreatePayment(ctx context.Context, payment *models.Payment) (bool, *models.Payment, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(payment).Error; err != nil {
			if isDuplicateKey(err) {
				return errDuplicatePayment
			}
			return err
		}
		return tx.Create(&models.PaymentEvent{
			PaymentID:     payment.PaymentID,
			ToStatus:      payment.Status,
			Source:        models.EventSourceAPI,
			CorrelationID: payment.CorrelationID,
			Message:       "payment created",
		}).Error
	})

	created := true
	if err != nil {
		if !errors.Is(err, errDuplicatePayment) {
			return false, nil, wrapDBError("create payment", err)
		}
		created = false
	}

	stored, err := r.GetPayment(ctx, payment.PaymentID)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

// GetPayment retrieves a payment by its payment id
func (r *paymentRepository) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&payment).Error
	if err != nil {
		return nil, wrapDBError("get payment", err)
	}
	return &payment, nil
}

// FindPayment looks a payment up by id, by external reference, or by both.
// The reference matches the external payment id, the gateway transaction id
// or the order id.
func (r *paymentRepository) FindPayment(ctx context.Context, paymentID, externalRef string) (*models.Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	externalRef = strings.TrimSpace(externalRef)
	if paymentID == "" && externalRef == "" {
		return nil, apperror.NewValidationError("paymentId", "paymentId or externalReference is required")
	}

	q := r.db.WithContext(ctx).Model(&models.Payment{})
	if paymentID != "" {
		q = q.Where("payment_id = ?", paymentID)
	}
	if externalRef != "" {
		q = q.Where("(external_payment_id = ? OR gateway_transaction_id = ? OR order_id = ?)", externalRef, externalRef, externalRef)
	}

	var payment models.Payment
	if err := q.Order("created_at DESC").First(&payment).Error; err != nil {
		return nil, wrapDBError("find payment", err)
	}
	return &payment, nil
}

// ApplyTransition performs a compare-and-set on the payment status and writes
// one event per step in the same transaction.
func (r *paymentRepository) ApplyTransition(ctx context.Context, in TransitionInput) (*models.Payment, error) {
	var updated models.Payment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		updates := map[string]interface{}{"updated_at": now}

		target := in.From
		if len(in.Path) > 0 {
			target = in.Path[len(in.Path)-1]
			updates["status"] = target
			if target.IsTerminal() {
				updates["completed_at"] = &now
			}
		}
		if in.GatewayTransactionID != "" {
			updates["gateway_transaction_id"] = in.GatewayTransactionID
		}
		if in.ExternalPaymentID != "" {
			updates["external_payment_id"] = in.ExternalPaymentID
		}
		if in.Link != "" {
			updates["link"] = in.Link
		}
		if in.ResponseType != "" {
			updates["response_type"] = in.ResponseType
		}
		if in.PaymentMethod != "" {
			updates["payment_method"] = in.PaymentMethod
		}
		if in.Gateway != "" {
			updates["gateway"] = in.Gateway
		}
		if in.CustomerPhone != "" {
			updates["customer_phone"] = in.CustomerPhone
		}

		res := tx.Model(&models.Payment{}).
			Where("payment_id = ? AND status = ?", in.PaymentID, in.From).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			var current models.Payment
			if err := tx.Where("payment_id = ?", in.PaymentID).First(&current).Error; err != nil {
				return err
			}
			// Some drivers report zero changed rows for an update that
			// rewrites identical values.
			if current.Status != in.From || len(in.Path) > 0 {
				return ErrStatusConflict
			}
		}

		prev := in.From
		for _, step := range in.Path {
			if err := tx.Create(&models.PaymentEvent{
				PaymentID:     in.PaymentID,
				FromStatus:    prev,
				ToStatus:      step,
				Source:        in.Source,
				CorrelationID: in.CorrelationID,
				Message:       in.Message,
			}).Error; err != nil {
				return err
			}
			prev = step
		}
		if len(in.Path) == 0 && in.Message != "" {
			if err := tx.Create(&models.PaymentEvent{
				PaymentID:     in.PaymentID,
				FromStatus:    in.From,
				ToStatus:      in.From,
				Source:        in.Source,
				CorrelationID: in.CorrelationID,
				Message:       in.Message,
			}).Error; err != nil {
				return err
			}
		}

		return tx.Where("payment_id = ?", in.PaymentID).First(&updated).Error
	})
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, err
		}
		return nil, wrapDBError("apply transition", err)
	}
	return &updated, nil
}

// ListPayments returns a filtered page of payments, newest first, and the total match count
func (r *paymentRepository) ListPayments(ctx context.Context, filter PaymentFilter, page Page) ([]models.Payment, int64, error) {
	page = page.Normalize()
	scope := func(db *gorm.DB) *gorm.DB {
		if filter.Status != "" {
			db = db.Where("status = ?", filter.Status)
		}
		if filter.Method != "" {
			db = db.Where("payment_method = ?", filter.Method)
		}
		if filter.Gateway != "" {
			db = db.Where("gateway = ?", filter.Gateway)
		}
		if filter.CustomerPhone != "" {
			db = db.Where("customer_phone = ?", filter.CustomerPhone)
		}
		if filter.OrderID != "" {
			db = db.Where("order_id = ?", filter.OrderID)
		}
		if filter.CreatedFrom != nil {
			db = db.Where("created_at >= ?", *filter.CreatedFrom)
		}
		if filter.CreatedTo != nil {
			db = db.Where("created_at < ?", *filter.CreatedTo)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Payment{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, wrapDBError("count payments", err)
	}

	var payments []models.Payment
	err := r.db.WithContext(ctx).Scopes(scope).
		Order("created_at DESC").Order("id DESC").
		Offset(page.Offset()).Limit(page.Size).Find(&payments).Error
	if err != nil {
		return nil, 0, wrapDBError("list payments", err)
	}
	return payments, total, nil
}

// ListEvents returns the lifecycle events of a payment in insertion order
func (r *paymentRepository) ListEvents(ctx context.Context, paymentID string) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("id ASC").Find(&events).Error
	if err != nil {
		return nil, wrapDBError("list payment events", err)
	}
	return events, nil
}

// GetStatistics aggregates totals over all payments
func (r *paymentRepository) GetStatistics(ctx context.Context) (*models.PaymentStatistics, error) {
	db := r.db.WithContext(ctx)
	stats := &models.PaymentStatistics{ByStatus: make(map[models.PaymentStatus]int64)}

	if err := db.Model(&models.Payment{}).Count(&stats.TotalPayments).Error; err != nil {
		return nil, wrapDBError("count payments", err)
	}

	var totalAmount decimal.NullDecimal
	if err := db.Model(&models.Payment{}).Select("SUM(amount)").Row().Scan(&totalAmount); err != nil {
		return nil, wrapDBError("sum payment amounts", err)
	}
	stats.TotalAmount = decimal.Zero
	if totalAmount.Valid {
		stats.TotalAmount = totalAmount.Decimal
	}

	var rows []struct {
		Status models.PaymentStatus
		Count  int64
	}
	if err := db.Model(&models.Payment{}).Select("status, COUNT(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, wrapDBError("count payments by status", err)
	}
	for _, row := range rows {
		stats.ByStatus[row.Status] = row.Count
	}

	now := time.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := db.Model(&models.Payment{}).Where("created_at >= ?", todayStart).Count(&stats.TodayCount).Error; err != nil {
		return nil, wrapDBError("count today's payments", err)
	}

	return stats, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}
