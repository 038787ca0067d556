package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"kcd-ticketing/internal/models"

	"github.com/uptrace/bun"
)

// ErrOrderNotFound is returned when an order id does not resolve.
var ErrOrderNotFound = errors.New("order not found")

type DB struct {
	Bun *bun.DB
}

// RunInTx wraps fn in a single transaction; everything an order transition
// touches (order row, items, tier counters, discount counters) commits or
// rolls back together.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, tx)
	})
}

// ---------------- ORDERS ----------------

func (d *DB) GetOrderByID(ctx context.Context, idb bun.IDB, id string) (*models.Order, error) {
	var order models.Order
	err := idb.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderWithDetails retrieves an order together with its items and attendee.
func (d *DB) GetOrderWithDetails(ctx context.Context, id string) (*models.OrderWithDetails, error) {
	order, err := d.GetOrderByID(ctx, d.Bun, id)
	if err != nil {
		return nil, err
	}

	items, err := d.GetOrderItems(ctx, d.Bun, id)
	if err != nil {
		return nil, err
	}

	var attendee models.Attendee
	err = d.Bun.NewSelect().
		Model(&attendee).
		Where("order_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	details := &models.OrderWithDetails{Order: *order, Items: items}
	if err == nil {
		details.Attendee = &attendee
	}
	return details, nil
}

func (d *DB) GetOrderItems(ctx context.Context, idb bun.IDB, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := idb.NewSelect().
		Model(&items).
		Where("order_id = ?", orderID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (d *DB) InsertOrder(ctx context.Context, idb bun.IDB, order *models.Order) error {
	_, err := idb.NewInsert().Model(order).Exec(ctx)
	return err
}

func (d *DB) InsertOrderItems(ctx context.Context, idb bun.IDB, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	_, err := idb.NewInsert().Model(&items).Exec(ctx)
	return err
}

func (d *DB) InsertAttendee(ctx context.Context, idb bun.IDB, attendee *models.Attendee) error {
	_, err := idb.NewInsert().Model(attendee).Exec(ctx)
	return err
}

// ---------------- GUARDED TRANSITIONS ----------------

// TransitionStatus flips an order's status only when the current status is in
// `from`, reporting whether the flip happened. The status check and the write
// are one statement, so concurrent transitions for the same order serialize
// on the row and exactly one wins.
func (d *DB) TransitionStatus(ctx context.Context, idb bun.IDB, id string, from []models.OrderStatus, to models.OrderStatus) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", to).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// MarkOrderPaid transitions to PAID and stamps the payment fields in one
// guarded update. Returns false when the order was not in a payable status.
func (d *DB) MarkOrderPaid(ctx context.Context, idb bun.IDB, id, paymentID, method string, result json.RawMessage, paidAt time.Time) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderPaid).
		Set("payment_id = ?", paymentID).
		Set("payment_method = ?", method).
		Set("payment_result = ?", result).
		Set("paid_at = ?", paidAt).
		Where("id = ?", id).
		Where("status IN (?)", bun.In([]models.OrderStatus{models.OrderPending, models.OrderAwaitingPayment})).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ExpireOrder transitions to EXPIRED only when the order is still live and
// its reservation window has actually lapsed, re-checked inside the statement
// so a late-arriving payment processed first wins.
func (d *DB) ExpireOrder(ctx context.Context, idb bun.IDB, id string, now time.Time) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderExpired).
		Where("id = ?", id).
		Where("status IN (?)", bun.In([]models.OrderStatus{models.OrderPending, models.OrderAwaitingPayment})).
		Where("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// SetPaymentLink stores the provider's correlation token and opaque response
// payload after a successful payment-link request.
func (d *DB) SetPaymentLink(ctx context.Context, idb bun.IDB, id, providerCode, method string, result json.RawMessage) error {
	_, err := idb.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_id = ?", providerCode).
		Set("payment_method = ?", method).
		Set("payment_result = ?", result).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// ListDueOrderIDs returns live orders whose reservation window lapsed before
// now, oldest first. Used by the expiry sweep.
func (d *DB) ListDueOrderIDs(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := d.Bun.NewSelect().
		Column("id").
		Table("orders").
		Where("status IN (?)", bun.In([]models.OrderStatus{models.OrderPending, models.OrderAwaitingPayment})).
		Where("expires_at < ?", now).
		Order("expires_at").
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
