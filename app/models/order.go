package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlayfoodOrder mirrors an order owned by the upstream ordering platform.
// It is kept locally for display and reconciliation only.
type PlayfoodOrder struct {
	ID           uint            `gorm:"primaryKey" json:"-"`
	OrderID      string          `gorm:"type:varchar(191);not null;uniqueIndex" json:"orderId"`
	PaymentID    string          `gorm:"type:varchar(191);index" json:"paymentId"`
	CustomerName string          `gorm:"type:varchar(200)" json:"customerName,omitempty"`
	VendorName   string          `gorm:"type:varchar(200)" json:"vendorName,omitempty"`
	Currency     string          `gorm:"type:varchar(3)" json:"currency"`
	Subtotal     decimal.Decimal `gorm:"type:decimal(18,2)" json:"subtotal"`
	DeliveryFee  decimal.Decimal `gorm:"type:decimal(18,2)" json:"deliveryFee"`
	Total        decimal.Decimal `gorm:"type:decimal(18,2)" json:"total"`
	Items        []OrderItem     `gorm:"foreignKey:OrderRefID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

// OrderItem is a single line of a mirrored order.
type OrderItem struct {
	ID            uint            `gorm:"primaryKey" json:"-"`
	OrderRefID    uint            `gorm:"index;not null" json:"-"`
	Name          string          `gorm:"type:varchar(255)" json:"name"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(18,2)" json:"unit_price"`
	TotalPrice    decimal.Decimal `gorm:"type:decimal(18,2)" json:"total_price"`
	PriceMismatch bool            `gorm:"default:false" json:"priceMismatch,omitempty"`
}

// CheckTotal reports whether total_price equals quantity * unit_price.
func (i *OrderItem) CheckTotal() bool {
	expected := i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
	return expected.Round(2).Equal(i.TotalPrice.Round(2))
}
