package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/testutil"
)

func TestLogRepository_SaveLog(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	repo := NewLogRepository(db)

	require.NoError(t, repo.SaveLog(ctx, &models.APILog{CorrelationID: "c1", Method: "GET", URL: "/api/v1/x", ResponseStatus: 200}))
	require.NoError(t, repo.SaveLog(ctx, &models.AuthLog{CorrelationID: "c1", KeyPrefix: "pk_01234567", Outcome: models.AuthOutcomeAccepted}))
	require.NoError(t, repo.SaveLog(ctx, &models.WebhookLog{Provider: "mpesa", PaymentID: "pay-1", Payload: "{}", Outcome: models.WebhookOutcomeProcessed}))
	require.NoError(t, repo.SaveLog(ctx, &models.WebhookLog{Provider: "mpesa", PaymentID: "pay-1", Payload: "{}", Outcome: models.WebhookOutcomeInvalidSignature}))

	assert.Error(t, repo.SaveLog(ctx, nil))
	assert.Error(t, repo.SaveLog(ctx, models.APILog{}), "value entries are rejected")

	var apiCount, authCount int64
	require.NoError(t, db.Model(&models.APILog{}).Count(&apiCount).Error)
	require.NoError(t, db.Model(&models.AuthLog{}).Count(&authCount).Error)
	assert.Equal(t, int64(1), apiCount)
	assert.Equal(t, int64(1), authCount)

	logs, err := repo.ListWebhookLogs(ctx, "pay-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.WebhookOutcomeInvalidSignature, logs[0].Outcome)
}

func TestOrderRepository_UpsertReplacesItems(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testutil.NewTestDB(t))

	order := &models.PlayfoodOrder{
		OrderID:  "order-1",
		Currency: "MZN",
		Total:    decimal.RequireFromString("25"),
		Items: []models.OrderItem{
			{Name: "Burger", Quantity: 2, UnitPrice: decimal.RequireFromString("10"), TotalPrice: decimal.RequireFromString("20")},
			{Name: "Soda", Quantity: 1, UnitPrice: decimal.RequireFromString("5"), TotalPrice: decimal.RequireFromString("5")},
		},
	}
	require.NoError(t, repo.UpsertOrder(ctx, order))

	update := &models.PlayfoodOrder{
		OrderID:   "order-1",
		PaymentID: "pay-1",
		Currency:  "MZN",
		Total:     decimal.RequireFromString("10"),
		Items: []models.OrderItem{
			{Name: "Burger", Quantity: 1, UnitPrice: decimal.RequireFromString("10"), TotalPrice: decimal.RequireFromString("10")},
		},
	}
	require.NoError(t, repo.UpsertOrder(ctx, update))
	assert.Equal(t, order.ID, update.ID)

	stored, err := repo.GetOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, "pay-1", stored.PaymentID)
	assert.True(t, stored.Total.Equal(decimal.RequireFromString("10")))
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "Burger", stored.Items[0].Name)
}
