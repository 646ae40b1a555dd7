package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, user_id, product_id, product_code, amount, currency, quantity, status,
stripe_customer_id, stripe_session_id, stripe_payment_intent_id, metadata,
created_at, paid_at, cancelled_at`

// CreateOrderParams captures a new pending order.
type CreateOrderParams struct {
	UserID           pgtype.UUID
	ProductID        pgtype.UUID
	ProductCode      string
	Amount           int64
	Currency         string
	Quantity         int32
	StripeCustomerID string
	Metadata         []byte
}

const createOrder = `
INSERT INTO orders (user_id, product_id, product_code, amount, currency, quantity, status, stripe_customer_id, metadata)
VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8)
RETURNING ` + orderColumns

// CreateOrder persists a new order in pending state.
func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.UserID, arg.ProductID, arg.ProductCode, arg.Amount, arg.Currency,
		arg.Quantity, arg.StripeCustomerID, arg.Metadata,
	)
	return scanOrder(row)
}

const getOrderByID = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
`

// GetOrderByID fetches an order by its identifier.
func (q *Queries) GetOrderByID(ctx context.Context, id pgtype.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByID, id))
}

// ListOrdersByUserParams pages a user's orders, newest first.
type ListOrdersByUserParams struct {
	UserID pgtype.UUID
	Limit  int32
	Offset int32
}

const listOrdersByUser = `
SELECT ` + orderColumns + `
FROM orders
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

// ListOrdersByUser returns a page of the user's orders.
func (q *Queries) ListOrdersByUser(ctx context.Context, arg ListOrdersByUserParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByUser, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

const countOrdersByUser = `
SELECT COUNT(*) FROM orders WHERE user_id = $1
`

// CountOrdersByUser returns the number of orders a user has created.
func (q *Queries) CountOrdersByUser(ctx context.Context, userID pgtype.UUID) (int64, error) {
	var total int64
	err := q.db.QueryRow(ctx, countOrdersByUser, userID).Scan(&total)
	return total, err
}

// SetOrderSessionParams attaches the provider checkout session to an order.
type SetOrderSessionParams struct {
	ID              pgtype.UUID
	StripeSessionID string
}

const setOrderSession = `
UPDATE orders
SET stripe_session_id = $2
WHERE id = $1
`

// SetOrderSession records the checkout session id on the order after the
// session exists upstream. The builder is the only writer of this column.
func (q *Queries) SetOrderSession(ctx context.Context, arg SetOrderSessionParams) error {
	_, err := q.db.Exec(ctx, setOrderSession, arg.ID, arg.StripeSessionID)
	return err
}

// MarkOrderPaidParams moves a pending order to paid.
type MarkOrderPaidParams struct {
	ID                    pgtype.UUID
	StripeSessionID       pgtype.Text
	StripePaymentIntentID pgtype.Text
	PaidAt                pgtype.Timestamptz
}

const markOrderPaid = `
UPDATE orders
SET status = 'paid',
    paid_at = $2,
    stripe_session_id = COALESCE($3, stripe_session_id),
    stripe_payment_intent_id = COALESCE($4, stripe_payment_intent_id)
WHERE id = $1 AND status = 'pending'
`

// MarkOrderPaid transitions pending to paid. The status predicate makes the
// update a no-op when the order already reached a terminal state; callers
// read the affected row count to distinguish the two outcomes.
func (q *Queries) MarkOrderPaid(ctx context.Context, arg MarkOrderPaidParams) (int64, error) {
	tag, err := q.db.Exec(ctx, markOrderPaid, arg.ID, arg.PaidAt, arg.StripeSessionID, arg.StripePaymentIntentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkOrderCancelledParams moves a pending order to cancelled.
type MarkOrderCancelledParams struct {
	ID          pgtype.UUID
	CancelledAt pgtype.Timestamptz
}

const markOrderCancelled = `
UPDATE orders
SET status = 'cancelled', cancelled_at = $2
WHERE id = $1 AND status = 'pending'
`

// MarkOrderCancelled transitions pending to cancelled, no-op when terminal.
func (q *Queries) MarkOrderCancelled(ctx context.Context, arg MarkOrderCancelledParams) (int64, error) {
	tag, err := q.db.Exec(ctx, markOrderCancelled, arg.ID, arg.CancelledAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanOrder(row scannable) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.ProductID, &o.ProductCode, &o.Amount, &o.Currency,
		&o.Quantity, &o.Status, &o.StripeCustomerID, &o.StripeSessionID,
		&o.StripePaymentIntentID, &o.Metadata, &o.CreatedAt, &o.PaidAt, &o.CancelledAt,
	)
	return o, err
}
