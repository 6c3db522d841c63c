package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ManuelReschke/PayFox/app/models"
)

// logRepository implements the LogRepository interface
type logRepository struct {
	db *gorm.DB
}

// NewLogRepository creates a new log repository instance
func NewLogRepository(db *gorm.DB) LogRepository {
	return &logRepository{db: db}
}

// SaveLog inserts a log row into the table matching the entry kind
func (r *logRepository) SaveLog(ctx context.Context, entry models.LogEntry) error {
	if entry == nil {
		return errors.New("log entry is required")
	}
	switch entry.(type) {
	case *models.APILog, *models.AuthLog, *models.WebhookLog:
	default:
		return errors.New("unsupported log entry type")
	}
	return wrapDBError("save "+string(entry.LogKind())+" log", r.db.WithContext(ctx).Create(entry).Error)
}

// ListWebhookLogs returns the most recent webhook attempts for a payment
func (r *logRepository) ListWebhookLogs(ctx context.Context, paymentID string, limit int) ([]models.WebhookLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var logs []models.WebhookLog
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).
		Order("id DESC").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, wrapDBError("list webhook logs", err)
	}
	return logs, nil
}
