package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/ollync/backend-payments/internal/common"
	"github.com/ollync/backend-payments/internal/events"
	"github.com/ollync/backend-payments/internal/obs"
	"github.com/ollync/backend-payments/internal/payment"
	"github.com/ollync/backend-payments/internal/store"
)

// Store is the slice of the store the checkout builder depends on.
type Store interface {
	GetActiveProductByCode(ctx context.Context, code string) (store.Product, error)
	GetCustomerByUserID(ctx context.Context, userID pgtype.UUID) (store.Customer, error)
	InsertCustomer(ctx context.Context, arg store.InsertCustomerParams) (store.Customer, error)
	CreateOrder(ctx context.Context, arg store.CreateOrderParams) (store.Order, error)
	SetOrderSession(ctx context.Context, arg store.SetOrderSessionParams) error
}

// EventPublisher fans order facts out to the internal event bus.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, aggregateID string, payload any)
}

// CreateSessionInput is the validated request to build a checkout session.
type CreateSessionInput struct {
	ProductCode string
	Quantity    int32
	Metadata    map[string]string
}

// CreateSessionResult is returned to the client to start the hosted payment.
type CreateSessionResult struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
	OrderID     string `json:"order_id"`
}

const defaultMaxQuantity = 99

// Service builds provider-hosted checkout sessions and the pending orders
// backing them.
type Service struct {
	Store       Store
	Provider    payment.Provider
	Bus         EventPublisher
	Log         zerolog.Logger
	BaseURL     string
	MaxQuantity int32
}

func (s *Service) maxQuantity() int32 {
	if s.MaxQuantity > 0 {
		return s.MaxQuantity
	}
	return defaultMaxQuantity
}

// ClampQuantity silently forces the quantity into [1, max]. Absent or
// out-of-range values are corrected rather than rejected.
func (s *Service) ClampQuantity(quantity int32) int32 {
	if quantity < 1 {
		return 1
	}
	if max := s.maxQuantity(); quantity > max {
		return max
	}
	return quantity
}

// CreateSession resolves the product and provider customer, persists a
// pending order, and creates the hosted checkout session.
func (s *Service) CreateSession(ctx context.Context, userID string, input CreateSessionInput) (CreateSessionResult, error) {
	code := strings.ToUpper(strings.TrimSpace(input.ProductCode))
	if code == "" {
		return CreateSessionResult{}, common.NewAppError("VALIDATION_ERROR", "product_code is required", http.StatusBadRequest, nil)
	}
	uid, err := store.ToUUID(userID)
	if err != nil {
		return CreateSessionResult{}, common.NewAppError("UNAUTHORIZED", "invalid user identity", http.StatusUnauthorized, err)
	}

	product, err := s.Store.GetActiveProductByCode(ctx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.observe(code, "invalid_product")
			return CreateSessionResult{}, common.NewAppError("INVALID_PRODUCT", "unknown or inactive product", http.StatusBadRequest, nil)
		}
		return CreateSessionResult{}, fmt.Errorf("load product: %w", err)
	}

	quantity := s.ClampQuantity(input.Quantity)
	amount := product.Amount * int64(quantity)

	customer, err := s.resolveCustomer(ctx, uid, userID)
	if err != nil {
		s.observe(code, "customer_error")
		return CreateSessionResult{}, err
	}

	metadataJSON, err := encodeOrderMetadata(input.Metadata)
	if err != nil {
		return CreateSessionResult{}, common.NewAppError("VALIDATION_ERROR", "metadata must be a flat string map", http.StatusBadRequest, err)
	}

	order, err := s.Store.CreateOrder(ctx, store.CreateOrderParams{
		UserID:           uid,
		ProductID:        product.ID,
		ProductCode:      product.Code,
		Amount:           amount,
		Currency:         product.Currency,
		Quantity:         quantity,
		StripeCustomerID: customer.StripeCustomerID,
		Metadata:         metadataJSON,
	})
	if err != nil {
		s.observe(code, "order_error")
		return CreateSessionResult{}, fmt.Errorf("create order: %w", err)
	}
	orderID := store.UUIDString(order.ID)

	session, err := s.Provider.CreateCheckoutSession(ctx, payment.SessionParams{
		CustomerID:  customer.StripeCustomerID,
		Currency:    product.Currency,
		UnitAmount:  product.Amount,
		ProductName: product.Name,
		Quantity:    int64(quantity),
		SuccessURL:  s.redirectURL("success", orderID),
		CancelURL:   s.redirectURL("cancel", orderID),
		Metadata: payment.SessionMetadata{
			OrderID:     orderID,
			UserID:      userID,
			ProductCode: product.Code,
			PostID:      strings.TrimSpace(input.Metadata["post_id"]),
		},
	})
	if err != nil {
		s.observe(code, "provider_error")
		return CreateSessionResult{}, common.NewAppError("PROVIDER_ERROR", "payment provider rejected the checkout session", http.StatusInternalServerError, err)
	}

	if err := s.Store.SetOrderSession(ctx, store.SetOrderSessionParams{
		ID:              order.ID,
		StripeSessionID: session.ID,
	}); err != nil {
		// The session exists upstream but our order does not reference it.
		// This must be distinguishable from a clean failure: the client should
		// resume the existing session rather than retry order creation.
		s.Log.Error().Err(err).
			Str("order_id", orderID).
			Str("session_id", session.ID).
			Msg("checkout session created but not recorded on order")
		s.observe(code, "session_unrecorded")
		appErr := common.NewAppError("SESSION_UNRECORDED", "checkout session created but not recorded", http.StatusInternalServerError, err)
		appErr.Details = map[string]string{"order_id": orderID, "session_id": session.ID}
		return CreateSessionResult{}, appErr
	}

	if s.Bus != nil {
		s.Bus.Publish(ctx, events.TopicOrderCreated, orderID, map[string]any{
			"order_id":     orderID,
			"user_id":      userID,
			"product_code": product.Code,
			"amount":       amount,
			"currency":     product.Currency,
			"quantity":     quantity,
		})
	}
	s.observe(code, "ok")

	return CreateSessionResult{
		CheckoutURL: session.URL,
		SessionID:   session.ID,
		OrderID:     orderID,
	}, nil
}

// resolveCustomer returns the provider customer for the user, creating one on
// first checkout. A concurrent first checkout loses the insert race on the
// user_id primary key and adopts the winner's mapping.
func (s *Service) resolveCustomer(ctx context.Context, uid pgtype.UUID, userID string) (store.Customer, error) {
	customer, err := s.Store.GetCustomerByUserID(ctx, uid)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return store.Customer{}, fmt.Errorf("load customer: %w", err)
	}

	email, _ := common.UserEmail(ctx)
	created, err := s.Provider.CreateCustomer(ctx, payment.CustomerParams{
		Email:  email,
		UserID: userID,
	})
	if err != nil {
		return store.Customer{}, common.NewAppError("PROVIDER_ERROR", "payment provider rejected customer creation", http.StatusInternalServerError, err)
	}

	customer, err = s.Store.InsertCustomer(ctx, store.InsertCustomerParams{
		UserID:           uid,
		StripeCustomerID: created.ID,
		Email:            email,
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			existing, getErr := s.Store.GetCustomerByUserID(ctx, uid)
			if getErr != nil {
				return store.Customer{}, fmt.Errorf("load customer after race: %w", getErr)
			}
			s.Log.Info().Str("user_id", userID).Msg("concurrent customer creation, adopting existing mapping")
			return existing, nil
		}
		return store.Customer{}, fmt.Errorf("store customer: %w", err)
	}
	if obs.CustomerCreatedTotal != nil {
		obs.CustomerCreatedTotal.Inc()
	}
	return customer, nil
}

func (s *Service) redirectURL(outcome, orderID string) string {
	base := strings.TrimRight(s.BaseURL, "/")
	return fmt.Sprintf("%s/profile/wallet?payment=%s&order_id=%s", base, outcome, url.QueryEscape(orderID))
}

func (s *Service) observe(productCode, result string) {
	if obs.CheckoutSessionTotal != nil {
		obs.CheckoutSessionTotal.WithLabelValues(productCode, result).Inc()
	}
}

func encodeOrderMetadata(metadata map[string]string) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(metadata)
}
