package payment

import "context"

// SessionMetadata is attached to the provider-hosted checkout session and
// echoed back verbatim on webhook events. The webhook processor trusts it to
// locate the order without a separate lookup table.
type SessionMetadata struct {
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	ProductCode string `json:"product_code"`
	PostID      string `json:"post_id,omitempty"`
}

// CustomerParams describes a provider customer to create.
type CustomerParams struct {
	Email  string
	UserID string
}

// Customer is the provider-side customer record.
type Customer struct {
	ID    string
	Email string
}

// SessionParams describes a hosted checkout session to create.
type SessionParams struct {
	CustomerID  string
	Currency    string
	UnitAmount  int64
	ProductName string
	Quantity    int64
	SuccessURL  string
	CancelURL   string
	Metadata    SessionMetadata
}

// Session is the provider-side checkout session.
type Session struct {
	ID  string
	URL string
}

// Provider abstracts the hosted-checkout payment provider.
type Provider interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (Customer, error)
	CreateCheckoutSession(ctx context.Context, params SessionParams) (Session, error)
}
