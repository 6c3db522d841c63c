package models

import (
	"time"

	"gorm.io/datatypes"
)

// LogKind identifies the log table an entry belongs to.
type LogKind string

const (
	LogKindAPI     LogKind = "api"
	LogKindAuth    LogKind = "auth"
	LogKindWebhook LogKind = "webhook"
)

// LogEntry is implemented by every insert-only log model.
type LogEntry interface {
	LogKind() LogKind
}

// APILog is one row per inbound HTTP request, written regardless of the
// authentication outcome.
type APILog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CorrelationID  string    `gorm:"type:varchar(64);index" json:"correlation_id"`
	Method         string    `gorm:"type:varchar(10);not null" json:"method"`
	URL            string    `gorm:"type:varchar(1000);not null" json:"url"`
	IP             string    `gorm:"type:varchar(45)" json:"ip"`
	KeyPrefix      string    `gorm:"type:varchar(64)" json:"key_prefix,omitempty"`
	ResponseStatus int       `gorm:"index" json:"response_status"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	ErrorMessage   string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (APILog) TableName() string { return "api_logs" }

func (APILog) LogKind() LogKind { return LogKindAPI }

// Authentication outcomes.
const (
	AuthOutcomeAccepted = "accepted"
	AuthOutcomeRejected = "rejected"
)

// AuthLog is one row per authentication decision. Only the key prefix is
// stored, never the full key.
type AuthLog struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CorrelationID string    `gorm:"type:varchar(64);index" json:"correlation_id"`
	KeyPrefix     string    `gorm:"type:varchar(64)" json:"key_prefix"`
	KeyKind       string    `gorm:"type:varchar(50)" json:"key_kind"`
	Outcome       string    `gorm:"type:varchar(20);not null;index" json:"outcome"`
	Reason        string    `gorm:"type:varchar(100)" json:"reason"`
	Path          string    `gorm:"type:varchar(500)" json:"path"`
	IP            string    `gorm:"type:varchar(45)" json:"ip"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AuthLog) LogKind() LogKind { return LogKindAuth }

// Webhook processing outcomes.
const (
	WebhookOutcomeInvalidSignature  = "invalid-signature"
	WebhookOutcomeProcessed         = "processed"
	WebhookOutcomeNotFound          = "not-found"
	WebhookOutcomeInvalidTransition = "invalid-transition"
	WebhookOutcomeInvalidPayload    = "invalid-payload"
	WebhookOutcomeError             = "error"
)

// WebhookLog is one row per inbound webhook attempt.
type WebhookLog struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Provider        string         `gorm:"type:varchar(50);not null;index" json:"provider"`
	ProviderEventID string         `gorm:"type:varchar(191);index" json:"provider_event_id,omitempty"`
	PaymentID       string         `gorm:"type:varchar(191);index" json:"payment_id,omitempty"`
	Payload         string         `gorm:"type:longtext;not null" json:"payload"`
	Headers         datatypes.JSON `json:"headers,omitempty"`
	Signature       string         `gorm:"type:varchar(200)" json:"signature,omitempty"`
	SignatureValid  bool           `gorm:"default:false;index" json:"signature_valid"`
	Outcome         string         `gorm:"type:varchar(30);not null;index" json:"outcome"`
	ErrorMessage    string         `gorm:"type:text" json:"error_message,omitempty"`
	CorrelationID   string         `gorm:"type:varchar(64);index" json:"correlation_id"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WebhookLog) LogKind() LogKind { return LogKindWebhook }
