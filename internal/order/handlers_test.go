package order

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ollync/backend-payments/internal/common"
	"github.com/ollync/backend-payments/internal/store"
)

const (
	ownerID    = "7c1f98f3-54c1-4f0f-9438-52a0ee49b5a1"
	strangerID = "11111111-2222-3333-4444-555555555555"
	orderID    = "b7a4cdbb-6a60-4c0e-91f3-0de1dc9ef1d3"
)

type stubOrderStore struct {
	order     store.Order
	orders    []store.Order
	total     int64
	listParam store.ListOrdersByUserParams
}

func (s *stubOrderStore) GetOrderByID(_ context.Context, id pgtype.UUID) (store.Order, error) {
	if store.UUIDString(id) != store.UUIDString(s.order.ID) {
		return store.Order{}, pgx.ErrNoRows
	}
	return s.order, nil
}

func (s *stubOrderStore) ListOrdersByUser(_ context.Context, arg store.ListOrdersByUserParams) ([]store.Order, error) {
	s.listParam = arg
	return s.orders, nil
}

func (s *stubOrderStore) CountOrdersByUser(_ context.Context, _ pgtype.UUID) (int64, error) {
	return s.total, nil
}

func mustUUID(t *testing.T, s string) pgtype.UUID {
	t.Helper()
	id, err := store.ToUUID(s)
	require.NoError(t, err)
	return id
}

func paidOrder(t *testing.T) store.Order {
	t.Helper()
	return store.Order{
		ID:          mustUUID(t, orderID),
		UserID:      mustUUID(t, ownerID),
		ProductCode: "BOOST_7D",
		Amount:      499,
		Currency:    "eur",
		Quantity:    1,
		Status:      store.OrderStatusPaid,
		CreatedAt:   store.ToTimestamptz(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)),
		PaidAt:      store.ToTimestamptz(time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC)),
	}
}

func getRequest(t *testing.T, userID, id string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+id, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", id)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if userID != "" {
		ctx = common.WithUserID(ctx, userID)
	}
	return req.WithContext(ctx)
}

func TestGetOrderReturnsOwnOrder(t *testing.T) {
	h := Handler{Store: &stubOrderStore{order: paidOrder(t)}, Log: zerolog.Nop()}

	rec := httptest.NewRecorder()
	h.Get(rec, getRequest(t, ownerID, orderID))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"paid"`)
	require.Contains(t, rec.Body.String(), orderID)
}

func TestGetOrderHidesOtherUsersOrders(t *testing.T) {
	h := Handler{Store: &stubOrderStore{order: paidOrder(t)}, Log: zerolog.Nop()}

	rec := httptest.NewRecorder()
	h.Get(rec, getRequest(t, strangerID, orderID))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrderUnknownIDIs404(t *testing.T) {
	h := Handler{Store: &stubOrderStore{order: paidOrder(t)}, Log: zerolog.Nop()}

	rec := httptest.NewRecorder()
	h.Get(rec, getRequest(t, ownerID, "99999999-9999-9999-9999-999999999999"))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.Get(rec, getRequest(t, ownerID, "not-a-uuid"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrderRequiresAuth(t *testing.T) {
	h := Handler{Store: &stubOrderStore{order: paidOrder(t)}, Log: zerolog.Nop()}

	rec := httptest.NewRecorder()
	h.Get(rec, getRequest(t, "", orderID))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListOrdersPaginates(t *testing.T) {
	stub := &stubOrderStore{orders: []store.Order{paidOrder(t)}, total: 7}
	h := Handler{Store: stub, Log: zerolog.Nop(), DefaultLimit: 20, MaxLimit: 100}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=500&offset=2", nil)
	req = req.WithContext(common.WithUserID(req.Context(), ownerID))
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int32(100), stub.listParam.Limit)
	require.Equal(t, int32(2), stub.listParam.Offset)
	require.Contains(t, rec.Body.String(), `"total":7`)
}

func TestListOrdersDefaultsLimit(t *testing.T) {
	stub := &stubOrderStore{}
	h := Handler{Store: stub, Log: zerolog.Nop()}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req = req.WithContext(common.WithUserID(req.Context(), ownerID))
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int32(20), stub.listParam.Limit)
	require.Equal(t, int32(0), stub.listParam.Offset)
}
