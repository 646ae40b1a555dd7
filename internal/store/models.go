package store

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// OrderStatus enumerates the purchase lifecycle. Transitions are monotonic:
// pending moves to exactly one of the terminal states and never back.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusExpired   OrderStatus = "expired"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusPaid, OrderStatusExpired, OrderStatusCancelled:
		return true
	}
	return false
}

// Product is a catalog entry purchasable through checkout.
type Product struct {
	ID            pgtype.UUID
	Code          string
	Name          string
	Description   pgtype.Text
	Amount        int64
	Currency      string
	StripePriceID pgtype.Text
	Active        bool
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

// Customer links an internal user to a payment provider customer record.
type Customer struct {
	UserID           pgtype.UUID
	StripeCustomerID string
	Email            string
	CreatedAt        pgtype.Timestamptz
}

// Order represents a single purchase attempt.
type Order struct {
	ID                    pgtype.UUID
	UserID                pgtype.UUID
	ProductID             pgtype.UUID
	ProductCode           string
	Amount                int64
	Currency              string
	Quantity              int32
	Status                OrderStatus
	StripeCustomerID      string
	StripeSessionID       pgtype.Text
	StripePaymentIntentID pgtype.Text
	Metadata              []byte
	CreatedAt             pgtype.Timestamptz
	PaidAt                pgtype.Timestamptz
	CancelledAt           pgtype.Timestamptz
}

// PaymentEvent is the append-only record of an inbound provider webhook call.
type PaymentEvent struct {
	ID          pgtype.UUID
	EventID     string
	EventType   string
	OrderID     pgtype.UUID
	Payload     []byte
	Processed   bool
	ProcessedAt pgtype.Timestamptz
	CreatedAt   pgtype.Timestamptz
}

// Listing carries the promotion fields this service is allowed to write.
type Listing struct {
	ID                 pgtype.UUID
	OwnerID            pgtype.UUID
	Title              string
	BoostedUntil       pgtype.Timestamptz
	SponsoredUntil     pgtype.Timestamptz
	PromotionUpdatedAt pgtype.Timestamptz
	CreatedAt          pgtype.Timestamptz
}

// DomainEvent is a persisted fact emitted on the internal event bus.
type DomainEvent struct {
	ID          pgtype.UUID
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
	OccurredAt  pgtype.Timestamptz
}
