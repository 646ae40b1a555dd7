package order

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/ollync/backend-payments/internal/common"
	"github.com/ollync/backend-payments/internal/store"
)

// Store is the slice of the store order reads depend on.
type Store interface {
	GetOrderByID(ctx context.Context, id pgtype.UUID) (store.Order, error)
	ListOrdersByUser(ctx context.Context, arg store.ListOrdersByUserParams) ([]store.Order, error)
	CountOrdersByUser(ctx context.Context, userID pgtype.UUID) (int64, error)
}

// View is the JSON shape orders are rendered as.
type View struct {
	ID              string     `json:"id"`
	ProductCode     string     `json:"product_code"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	Quantity        int32      `json:"quantity"`
	Status          string     `json:"status"`
	SessionID       string     `json:"session_id,omitempty"`
	PaymentIntentID string     `json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
}

func toView(o store.Order) View {
	v := View{
		ID:              store.UUIDString(o.ID),
		ProductCode:     o.ProductCode,
		Amount:          o.Amount,
		Currency:        o.Currency,
		Quantity:        o.Quantity,
		Status:          string(o.Status),
		SessionID:       store.TextString(o.StripeSessionID),
		PaymentIntentID: store.TextString(o.StripePaymentIntentID),
		CreatedAt:       store.TimeFromPG(o.CreatedAt),
	}
	if o.PaidAt.Valid {
		paid := o.PaidAt.Time
		v.PaidAt = &paid
	}
	if o.CancelledAt.Valid {
		cancelled := o.CancelledAt.Time
		v.CancelledAt = &cancelled
	}
	return v
}

// Handler exposes order reads over HTTP. Orders are always scoped to the
// authenticated user; another user's order is indistinguishable from a
// missing one.
type Handler struct {
	Store        Store
	Log          zerolog.Logger
	DefaultLimit int32
	MaxLimit     int32
}

func (h Handler) limits() (int32, int32) {
	def := h.DefaultLimit
	if def <= 0 {
		def = 20
	}
	max := h.MaxLimit
	if max <= 0 {
		max = 100
	}
	return def, max
}

// List handles GET /api/v1/orders.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	uid, err := store.ToUUID(userID)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid user identity", nil)
		return
	}

	def, max := h.limits()
	limit := parseInt32(r.URL.Query().Get("limit"), def)
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	offset := parseInt32(r.URL.Query().Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	items, err := h.Store.ListOrdersByUser(r.Context(), store.ListOrdersByUserParams{
		UserID: uid,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.Log.Error().Err(err).Str("user_id", userID).Msg("order listing failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to list orders", nil)
		return
	}
	total, err := h.Store.CountOrdersByUser(r.Context(), uid)
	if err != nil {
		h.Log.Error().Err(err).Str("user_id", userID).Msg("order count failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to list orders", nil)
		return
	}

	views := make([]View, 0, len(items))
	for _, o := range items {
		views = append(views, toView(o))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"items":  views,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Get handles GET /api/v1/orders/{orderId}.
func (h Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}

	orderID, err := store.ToUUID(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return
	}

	o, err := h.Store.GetOrderByID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		h.Log.Error().Err(err).Str("order_id", chi.URLParam(r, "orderId")).Msg("order lookup failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load order", nil)
		return
	}
	if store.UUIDString(o.UserID) != userID {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return
	}

	common.JSON(w, http.StatusOK, toView(o))
}

func parseInt32(raw string, fallback int32) int32 {
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return fallback
	}
	return int32(v)
}
