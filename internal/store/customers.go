package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getCustomerByUserID = `
SELECT user_id, stripe_customer_id, email, created_at
FROM payment_customers
WHERE user_id = $1
`

// GetCustomerByUserID returns the stored provider customer mapping for a user.
func (q *Queries) GetCustomerByUserID(ctx context.Context, userID pgtype.UUID) (Customer, error) {
	row := q.db.QueryRow(ctx, getCustomerByUserID, userID)
	var c Customer
	err := row.Scan(&c.UserID, &c.StripeCustomerID, &c.Email, &c.CreatedAt)
	return c, err
}

// InsertCustomerParams captures a new user to provider customer link.
type InsertCustomerParams struct {
	UserID           pgtype.UUID
	StripeCustomerID string
	Email            string
}

const insertCustomer = `
INSERT INTO payment_customers (user_id, stripe_customer_id, email)
VALUES ($1, $2, $3)
RETURNING user_id, stripe_customer_id, email, created_at
`

// InsertCustomer stores a provider customer mapping. The user_id primary key
// makes concurrent first-checkout races fail with a unique violation; callers
// treat that as "someone else just created it" and re-fetch.
func (q *Queries) InsertCustomer(ctx context.Context, arg InsertCustomerParams) (Customer, error) {
	row := q.db.QueryRow(ctx, insertCustomer, arg.UserID, arg.StripeCustomerID, arg.Email)
	var c Customer
	err := row.Scan(&c.UserID, &c.StripeCustomerID, &c.Email, &c.CreatedAt)
	return c, err
}
