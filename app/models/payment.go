package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusApproved   PaymentStatus = "approved"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// AllPaymentStatuses lists every known status in lifecycle order.
var AllPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusProcessing,
	PaymentStatusApproved,
	PaymentStatusFailed,
	PaymentStatusRefunded,
	PaymentStatusCancelled,
}

// IsValid reports whether s is one of the known statuses.
func (s PaymentStatus) IsValid() bool {
	for _, known := range AllPaymentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a terminal status.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusApproved, PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusCancelled:
		return true
	default:
		return false
	}
}

// ResponseType tells the caller how to continue after a create call.
type ResponseType string

const (
	ResponseTypeRedirect     ResponseType = "REDIRECT"
	ResponseTypeInternalForm ResponseType = "INTERNAL_FORM"
	ResponseTypeDirect       ResponseType = "DIRECT"
)

// Payment is the central entity. Rows are written only through the
// persistence gateway on behalf of the orchestrator and are never deleted.
type Payment struct {
	ID                   uint            `gorm:"primaryKey" json:"-"`
	PaymentID            string          `gorm:"type:varchar(191);not null;uniqueIndex" json:"paymentId"`
	ExternalPaymentID    string          `gorm:"type:varchar(191);index" json:"externalPaymentId,omitempty"`
	Amount               decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Currency             string          `gorm:"type:varchar(3);not null" json:"currency"`
	PaymentMethod        *string         `gorm:"type:varchar(50);index" json:"paymentMethod"`
	Status               PaymentStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	Gateway              string          `gorm:"type:varchar(50);index" json:"gateway"`
	GatewayTransactionID *string         `gorm:"type:varchar(191);index" json:"gatewayTransactionId"`
	Link                 string          `gorm:"type:varchar(500)" json:"link,omitempty"`
	ResponseType         ResponseType    `gorm:"type:varchar(20)" json:"responseType,omitempty"`
	ReturnURL            string          `gorm:"type:varchar(500)" json:"returnUrl,omitempty"`
	CustomerEmail        string          `gorm:"type:varchar(200)" json:"customerEmail,omitempty"`
	CustomerPhone        string          `gorm:"type:varchar(32);index" json:"customerPhone,omitempty"`
	CustomerName         string          `gorm:"type:varchar(200)" json:"customerName,omitempty"`
	BillingAddress       datatypes.JSON  `json:"billingAddress,omitempty"`
	Vendor               datatypes.JSON  `json:"vendor,omitempty"`
	OrderID              string          `gorm:"type:varchar(191);index" json:"orderId,omitempty"`
	OrderDetails         datatypes.JSON  `json:"orderDetails,omitempty"`
	Metadata             datatypes.JSON  `json:"metadata,omitempty"`
	CorrelationID        string          `gorm:"type:varchar(64);index" json:"correlationId,omitempty"`
	CompletedAt          *time.Time      `json:"completedAt,omitempty"`
	CreatedAt            time.Time       `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Method returns the payment method tag or an empty string.
func (p *Payment) Method() string {
	if p.PaymentMethod == nil {
		return ""
	}
	return *p.PaymentMethod
}

// TransactionID returns the gateway transaction id or an empty string.
func (p *Payment) TransactionID() string {
	if p.GatewayTransactionID == nil {
		return ""
	}
	return *p.GatewayTransactionID
}

// PaymentEvent records one lifecycle step of a payment. It is written in the
// same transaction as the status change it describes.
type PaymentEvent struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	PaymentID     string        `gorm:"type:varchar(191);not null;index" json:"paymentId"`
	FromStatus    PaymentStatus `gorm:"type:varchar(20)" json:"fromStatus"`
	ToStatus      PaymentStatus `gorm:"type:varchar(20);not null" json:"toStatus"`
	Source        string        `gorm:"type:varchar(20);not null;index" json:"source"`
	CorrelationID string        `gorm:"type:varchar(64);index" json:"correlationId,omitempty"`
	Message       string        `gorm:"type:text" json:"message,omitempty"`
	CreatedAt     time.Time     `gorm:"autoCreateTime;index" json:"createdAt"`
}

// Event sources.
const (
	EventSourceAPI     = "api"
	EventSourceGateway = "gateway"
	EventSourceWebhook = "webhook"
)

// PaymentStatistics is the aggregate view returned by the store.
type PaymentStatistics struct {
	TotalPayments int64                   `json:"totalPayments"`
	TotalAmount   decimal.Decimal         `json:"totalAmount"`
	ByStatus      map[PaymentStatus]int64 `json:"byStatus"`
	TodayCount    int64                   `json:"todayCount"`
}
