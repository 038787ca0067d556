package db_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"kcd-ticketing/internal/models"
	"kcd-ticketing/internal/order/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	// Connect to an in-memory SQLite DB for testing
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	db.Migrate(bunDB)

	return &db.DB{Bun: bunDB}, bunDB
}

func insertOrder(t *testing.T, bunDB *bun.DB, status models.OrderStatus, expiresAt time.Time) models.Order {
	order := models.Order{
		ID:             uuid.New().String(),
		Status:         status,
		SubtotalAmount: decimal.NewFromInt(5000),
		DiscountAmount: decimal.Zero,
		TotalAmount:    decimal.NewFromInt(5000),
		Currency:       "USD",
		ExpiresAt:      expiresAt,
		CreatedAt:      time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&order).Exec(context.Background())
	assert.NoError(t, err)
	return order
}

func TestMigrateSeedsTiersAndCodes(t *testing.T) {
	_, bunDB := setupTestDB(t)
	defer bunDB.Close()

	var tiers []models.TicketTier
	err := bunDB.NewSelect().Model(&tiers).Order("sort_order").Scan(context.Background())
	assert.NoError(t, err)
	assert.Len(t, tiers, 3)
	assert.Equal(t, "alpha", tiers[0].Slug)
	assert.Equal(t, models.TierSoldOut, tiers[0].Status)
	assert.Equal(t, "beta", tiers[1].Slug)
	assert.Equal(t, models.TierAvailable, tiers[1].Status)
	assert.Equal(t, "ga", tiers[2].Slug)
	assert.Equal(t, models.TierComingSoon, tiers[2].Status)

	var codes []models.DiscountCode
	err = bunDB.NewSelect().Model(&codes).Scan(context.Background())
	assert.NoError(t, err)
	assert.Len(t, codes, 1)
	assert.Equal(t, "REPUBLIC26", codes[0].Code)
	assert.Equal(t, tiers[0].ID, codes[0].TicketTierID)

	// Running Migrate again must not duplicate the seed
	db.Migrate(bunDB)
	count, err := bunDB.NewSelect().Model((*models.TicketTier)(nil)).Count(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestGetOrderByID(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	order := insertOrder(t, bunDB, models.OrderPending, time.Now().Add(10*time.Minute))

	// Test case: Get existing order
	got, err := orderDB.GetOrderByID(context.Background(), bunDB, order.ID)
	assert.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Equal(t, models.OrderPending, got.Status)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(5000)))

	// Test case: Get non-existent order
	got, err = orderDB.GetOrderByID(context.Background(), bunDB, "non-existent")
	assert.ErrorIs(t, err, db.ErrOrderNotFound)
	assert.Nil(t, got)
}

func TestGetOrderWithDetails(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	order := insertOrder(t, bunDB, models.OrderPending, time.Now().Add(10*time.Minute))

	items := []models.OrderItem{
		{
			ID:           uuid.New().String(),
			OrderID:      order.ID,
			TicketTierID: "tier1",
			TierSlug:     "beta",
			TierName:     "Beta",
			Quantity:     2,
			UnitPrice:    decimal.NewFromInt(2500),
			TotalPrice:   decimal.NewFromInt(5000),
		},
	}
	assert.NoError(t, orderDB.InsertOrderItems(context.Background(), bunDB, items))

	attendee := models.Attendee{
		ID:        uuid.New().String(),
		OrderID:   order.ID,
		Name:      "Ana",
		Email:     "ana@example.com",
		CreatedAt: time.Now(),
	}
	assert.NoError(t, orderDB.InsertAttendee(context.Background(), bunDB, &attendee))

	details, err := orderDB.GetOrderWithDetails(context.Background(), order.ID)
	assert.NoError(t, err)
	assert.Equal(t, order.ID, details.Order.ID)
	assert.Len(t, details.Items, 1)
	assert.Equal(t, "beta", details.Items[0].TierSlug)
	assert.NotNil(t, details.Attendee)
	assert.Equal(t, "ana@example.com", details.Attendee.Email)
}

func TestTransitionStatus(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	order := insertOrder(t, bunDB, models.OrderPending, time.Now().Add(10*time.Minute))

	// Test case: legal transition flips the row
	ok, err := orderDB.TransitionStatus(context.Background(), bunDB, order.ID,
		[]models.OrderStatus{models.OrderPending}, models.OrderAwaitingPayment)
	assert.NoError(t, err)
	assert.True(t, ok)

	// Test case: the same transition again matches nothing
	ok, err = orderDB.TransitionStatus(context.Background(), bunDB, order.ID,
		[]models.OrderStatus{models.OrderPending}, models.OrderAwaitingPayment)
	assert.NoError(t, err)
	assert.False(t, ok)

	current, err := orderDB.GetOrderByID(context.Background(), bunDB, order.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderAwaitingPayment, current.Status)
}

func TestMarkOrderPaid(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	order := insertOrder(t, bunDB, models.OrderAwaitingPayment, time.Now().Add(10*time.Minute))
	paidAt := time.Now()
	result := json.RawMessage(`{"Oper":"TX-1"}`)

	ok, err := orderDB.MarkOrderPaid(context.Background(), bunDB, order.ID, "TX-1", "PagueloFacil", result, paidAt)
	assert.NoError(t, err)
	assert.True(t, ok)

	current, err := orderDB.GetOrderByID(context.Background(), bunDB, order.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderPaid, current.Status)
	assert.Equal(t, "TX-1", current.PaymentID)
	assert.Equal(t, "PagueloFacil", current.PaymentMethod)
	assert.JSONEq(t, string(result), string(current.PaymentResult))
	assert.False(t, current.PaidAt.IsZero())

	// Test case: a second confirmation does not rewrite the payment fields
	ok, err = orderDB.MarkOrderPaid(context.Background(), bunDB, order.ID, "TX-2", "PagueloFacil", nil, time.Now())
	assert.NoError(t, err)
	assert.False(t, ok)

	current, err = orderDB.GetOrderByID(context.Background(), bunDB, order.ID)
	assert.NoError(t, err)
	assert.Equal(t, "TX-1", current.PaymentID)
}

func TestMarkOrderPaidRejectsTerminal(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	for _, status := range []models.OrderStatus{models.OrderCancelled, models.OrderExpired} {
		order := insertOrder(t, bunDB, status, time.Now().Add(-time.Minute))
		ok, err := orderDB.MarkOrderPaid(context.Background(), bunDB, order.ID, "TX-9", "PagueloFacil", nil, time.Now())
		assert.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestExpireOrder(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	// Test case: a live order past its window expires
	due := insertOrder(t, bunDB, models.OrderPending, time.Now().Add(-time.Minute))
	ok, err := orderDB.ExpireOrder(context.Background(), bunDB, due.ID, time.Now())
	assert.NoError(t, err)
	assert.True(t, ok)

	// Test case: a live order still inside its window does not
	live := insertOrder(t, bunDB, models.OrderAwaitingPayment, time.Now().Add(10*time.Minute))
	ok, err = orderDB.ExpireOrder(context.Background(), bunDB, live.ID, time.Now())
	assert.NoError(t, err)
	assert.False(t, ok)

	// Test case: a paid order past its window is left alone
	paid := insertOrder(t, bunDB, models.OrderPaid, time.Now().Add(-time.Minute))
	ok, err = orderDB.ExpireOrder(context.Background(), bunDB, paid.ID, time.Now())
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestListDueOrderIDs(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	older := insertOrder(t, bunDB, models.OrderPending, time.Now().Add(-2*time.Hour))
	newer := insertOrder(t, bunDB, models.OrderAwaitingPayment, time.Now().Add(-time.Minute))
	insertOrder(t, bunDB, models.OrderPending, time.Now().Add(10*time.Minute))
	insertOrder(t, bunDB, models.OrderPaid, time.Now().Add(-time.Hour))
	insertOrder(t, bunDB, models.OrderCancelled, time.Now().Add(-time.Hour))

	ids, err := orderDB.ListDueOrderIDs(context.Background(), time.Now())
	assert.NoError(t, err)
	assert.Equal(t, []string{older.ID, newer.ID}, ids)
}

func TestSetPaymentLink(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	order := insertOrder(t, bunDB, models.OrderPending, time.Now().Add(10*time.Minute))
	raw := json.RawMessage(`{"data":{"url":"https://pay.example/abc","code":"LINK-1"}}`)

	err := orderDB.SetPaymentLink(context.Background(), bunDB, order.ID, "LINK-1", "PagueloFacil", raw)
	assert.NoError(t, err)

	current, err := orderDB.GetOrderByID(context.Background(), bunDB, order.ID)
	assert.NoError(t, err)
	assert.Equal(t, "LINK-1", current.PaymentID)
	assert.Equal(t, "PagueloFacil", current.PaymentMethod)
	assert.JSONEq(t, string(raw), string(current.PaymentResult))
	// The link does not change the order's status
	assert.Equal(t, models.OrderPending, current.Status)
}
