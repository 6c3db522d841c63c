package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/PayFox/app/models"
)

// orderRepository implements the OrderRepository interface
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository instance
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// UpsertOrder creates or refreshes a mirrored order and replaces its items.
func (r *orderRepository) UpsertOrder(ctx context.Context, order *models.PlayfoodOrder) error {
	items := order.Items
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"payment_id",
				"customer_name",
				"vendor_name",
				"currency",
				"subtotal",
				"delivery_fee",
				"total",
				"updated_at",
			}),
		}).Create(order).Error; err != nil {
			return err
		}

		// Ensure ID is populated after upsert.
		var stored models.PlayfoodOrder
		if err := tx.Where("order_id = ?", order.OrderID).First(&stored).Error; err != nil {
			return err
		}
		order.ID = stored.ID
		order.CreatedAt = stored.CreatedAt

		if err := tx.Where("order_ref_id = ?", stored.ID).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].ID = 0
			items[i].OrderRefID = stored.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		order.Items = items
		return nil
	})
	return wrapDBError("upsert order", err)
}

// GetOrder retrieves a mirrored order with its items
func (r *orderRepository) GetOrder(ctx context.Context, orderID string) (*models.PlayfoodOrder, error) {
	var order models.PlayfoodOrder
	err := r.db.WithContext(ctx).Preload("Items").Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		return nil, wrapDBError("get order", err)
	}
	return &order, nil
}
