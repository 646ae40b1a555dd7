package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ollync/backend-payments/internal/common"
	"github.com/ollync/backend-payments/internal/payment"
	"github.com/ollync/backend-payments/internal/store"
)

const (
	testUserID  = "7c1f98f3-54c1-4f0f-9438-52a0ee49b5a1"
	testOrderID = "b7a4cdbb-6a60-4c0e-91f3-0de1dc9ef1d3"
)

func mustUUID(t *testing.T, s string) pgtype.UUID {
	t.Helper()
	id, err := store.ToUUID(s)
	require.NoError(t, err)
	return id
}

func boostProduct(t *testing.T) store.Product {
	t.Helper()
	return store.Product{
		ID:       mustUUID(t, "3f0a85a4-c5de-4f38-bfd4-0bb8d4b8df00"),
		Code:     "BOOST_7D",
		Name:     "Boost 7 days",
		Amount:   499,
		Currency: "eur",
		Active:   true,
	}
}

type stubStore struct {
	product    store.Product
	productErr error

	customer     store.Customer
	customerErrs []error
	getCalls     int

	insertErr         error
	insertedCustomers []store.InsertCustomerParams

	orderErr     error
	createdOrder []store.CreateOrderParams

	sessionErr  error
	setSessions []store.SetOrderSessionParams
}

func (s *stubStore) GetActiveProductByCode(_ context.Context, code string) (store.Product, error) {
	if s.productErr != nil {
		return store.Product{}, s.productErr
	}
	if code != s.product.Code {
		return store.Product{}, pgx.ErrNoRows
	}
	return s.product, nil
}

func (s *stubStore) GetCustomerByUserID(_ context.Context, _ pgtype.UUID) (store.Customer, error) {
	call := s.getCalls
	s.getCalls++
	if call < len(s.customerErrs) && s.customerErrs[call] != nil {
		return store.Customer{}, s.customerErrs[call]
	}
	return s.customer, nil
}

func (s *stubStore) InsertCustomer(_ context.Context, arg store.InsertCustomerParams) (store.Customer, error) {
	if s.insertErr != nil {
		return store.Customer{}, s.insertErr
	}
	s.insertedCustomers = append(s.insertedCustomers, arg)
	return store.Customer{
		UserID:           arg.UserID,
		StripeCustomerID: arg.StripeCustomerID,
		Email:            arg.Email,
	}, nil
}

func (s *stubStore) CreateOrder(_ context.Context, arg store.CreateOrderParams) (store.Order, error) {
	if s.orderErr != nil {
		return store.Order{}, s.orderErr
	}
	s.createdOrder = append(s.createdOrder, arg)
	var id pgtype.UUID
	_ = id.Scan(testOrderID)
	return store.Order{
		ID:          id,
		UserID:      arg.UserID,
		ProductID:   arg.ProductID,
		ProductCode: arg.ProductCode,
		Amount:      arg.Amount,
		Currency:    arg.Currency,
		Quantity:    arg.Quantity,
		Status:      store.OrderStatusPending,
	}, nil
}

func (s *stubStore) SetOrderSession(_ context.Context, arg store.SetOrderSessionParams) error {
	if s.sessionErr != nil {
		return s.sessionErr
	}
	s.setSessions = append(s.setSessions, arg)
	return nil
}

type stubProvider struct {
	customerCalls []payment.CustomerParams
	sessionCalls  []payment.SessionParams
	customerErr   error
	sessionErr    error
}

func (p *stubProvider) CreateCustomer(_ context.Context, params payment.CustomerParams) (payment.Customer, error) {
	p.customerCalls = append(p.customerCalls, params)
	if p.customerErr != nil {
		return payment.Customer{}, p.customerErr
	}
	return payment.Customer{ID: "cus_new", Email: params.Email}, nil
}

func (p *stubProvider) CreateCheckoutSession(_ context.Context, params payment.SessionParams) (payment.Session, error) {
	p.sessionCalls = append(p.sessionCalls, params)
	if p.sessionErr != nil {
		return payment.Session{}, p.sessionErr
	}
	return payment.Session{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil
}

func newTestService(t *testing.T, s *stubStore, p *stubProvider) *Service {
	t.Helper()
	return &Service{
		Store:    s,
		Provider: p,
		Log:      zerolog.Nop(),
		BaseURL:  "https://app.ollync.example",
	}
}

func TestClampQuantity(t *testing.T) {
	svc := &Service{}
	cases := []struct {
		in   int32
		want int32
	}{
		{-5, 1},
		{0, 1},
		{1, 1},
		{42, 42},
		{99, 99},
		{100, 99},
		{10_000, 99},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, svc.ClampQuantity(tc.in), fmt.Sprintf("quantity %d", tc.in))
	}

	capped := &Service{MaxQuantity: 5}
	require.Equal(t, int32(5), capped.ClampQuantity(9))
}

func TestCreateSessionHappyPath(t *testing.T) {
	stub := &stubStore{
		product:  boostProduct(t),
		customer: store.Customer{StripeCustomerID: "cus_existing", Email: "buyer@example.com"},
	}
	provider := &stubProvider{}
	svc := newTestService(t, stub, provider)

	result, err := svc.CreateSession(context.Background(), testUserID, CreateSessionInput{
		ProductCode: "boost_7d",
		Quantity:    3,
		Metadata:    map[string]string{"post_id": "4f1ad4b1-9d5a-4f2e-8c7a-57f5f7f0e9b2"},
	})
	require.NoError(t, err)
	require.Equal(t, "https://checkout.example/cs_1", result.CheckoutURL)
	require.Equal(t, "cs_1", result.SessionID)
	require.Equal(t, testOrderID, result.OrderID)

	require.Len(t, stub.createdOrder, 1)
	order := stub.createdOrder[0]
	require.Equal(t, int64(3*499), order.Amount)
	require.Equal(t, int32(3), order.Quantity)
	require.Equal(t, "cus_existing", order.StripeCustomerID)

	require.Len(t, provider.sessionCalls, 1)
	session := provider.sessionCalls[0]
	require.Equal(t, "cus_existing", session.CustomerID)
	require.Equal(t, int64(499), session.UnitAmount)
	require.Equal(t, int64(3), session.Quantity)
	require.Equal(t, "https://app.ollync.example/profile/wallet?payment=success&order_id="+testOrderID, session.SuccessURL)
	require.Equal(t, "https://app.ollync.example/profile/wallet?payment=cancel&order_id="+testOrderID, session.CancelURL)
	require.Equal(t, testOrderID, session.Metadata.OrderID)
	require.Equal(t, testUserID, session.Metadata.UserID)
	require.Equal(t, "BOOST_7D", session.Metadata.ProductCode)
	require.Equal(t, "4f1ad4b1-9d5a-4f2e-8c7a-57f5f7f0e9b2", session.Metadata.PostID)

	require.Len(t, stub.setSessions, 1)
	require.Equal(t, "cs_1", stub.setSessions[0].StripeSessionID)

	// Existing customer mapping means no provider customer call.
	require.Empty(t, provider.customerCalls)
}

func TestCreateSessionCreatesCustomerOnFirstCheckout(t *testing.T) {
	stub := &stubStore{
		product:      boostProduct(t),
		customerErrs: []error{pgx.ErrNoRows},
	}
	provider := &stubProvider{}
	svc := newTestService(t, stub, provider)

	ctx := common.WithUserEmail(context.Background(), "buyer@example.com")
	_, err := svc.CreateSession(ctx, testUserID, CreateSessionInput{ProductCode: "BOOST_7D", Quantity: 1})
	require.NoError(t, err)

	require.Len(t, provider.customerCalls, 1)
	require.Equal(t, "buyer@example.com", provider.customerCalls[0].Email)
	require.Len(t, stub.insertedCustomers, 1)
	require.Equal(t, "cus_new", stub.insertedCustomers[0].StripeCustomerID)
}

func TestCreateSessionAdoptsWinnerOnCustomerRace(t *testing.T) {
	stub := &stubStore{
		product:      boostProduct(t),
		customer:     store.Customer{StripeCustomerID: "cus_winner"},
		customerErrs: []error{pgx.ErrNoRows, nil},
		insertErr:    &pgconn.PgError{Code: "23505", ConstraintName: "payment_customers_pkey"},
	}
	provider := &stubProvider{}
	svc := newTestService(t, stub, provider)

	_, err := svc.CreateSession(context.Background(), testUserID, CreateSessionInput{ProductCode: "BOOST_7D", Quantity: 1})
	require.NoError(t, err)

	require.Len(t, stub.createdOrder, 1)
	require.Equal(t, "cus_winner", stub.createdOrder[0].StripeCustomerID)
	require.Equal(t, 2, stub.getCalls)
}

func TestCreateSessionRejectsMissingProductCode(t *testing.T) {
	svc := newTestService(t, &stubStore{product: boostProduct(t)}, &stubProvider{})

	_, err := svc.CreateSession(context.Background(), testUserID, CreateSessionInput{ProductCode: "  "})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
}

func TestCreateSessionRejectsUnknownProduct(t *testing.T) {
	stub := &stubStore{product: boostProduct(t)}
	svc := newTestService(t, stub, &stubProvider{})

	_, err := svc.CreateSession(context.Background(), testUserID, CreateSessionInput{ProductCode: "NOT_A_PRODUCT"})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_PRODUCT", appErr.Code)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	require.Empty(t, stub.createdOrder)
}

func TestCreateSessionProviderFailure(t *testing.T) {
	stub := &stubStore{
		product:  boostProduct(t),
		customer: store.Customer{StripeCustomerID: "cus_existing"},
	}
	provider := &stubProvider{sessionErr: errors.New("upstream down")}
	svc := newTestService(t, stub, provider)

	_, err := svc.CreateSession(context.Background(), testUserID, CreateSessionInput{ProductCode: "BOOST_7D", Quantity: 1})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "PROVIDER_ERROR", appErr.Code)
	require.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus)
	require.Empty(t, stub.setSessions)
}

func TestCreateSessionCustomerCreationFailure(t *testing.T) {
	stub := &stubStore{
		product:      boostProduct(t),
		customerErrs: []error{pgx.ErrNoRows},
	}
	provider := &stubProvider{customerErr: errors.New("upstream down")}
	svc := newTestService(t, stub, provider)

	_, err := svc.CreateSession(context.Background(), testUserID, CreateSessionInput{ProductCode: "BOOST_7D", Quantity: 1})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "PROVIDER_ERROR", appErr.Code)
	require.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus)
	require.Empty(t, stub.createdOrder)
}

func TestCreateSessionUnrecordedSessionIsDistinguishable(t *testing.T) {
	stub := &stubStore{
		product:    boostProduct(t),
		customer:   store.Customer{StripeCustomerID: "cus_existing"},
		sessionErr: errors.New("write failed"),
	}
	svc := newTestService(t, stub, &stubProvider{})

	_, err := svc.CreateSession(context.Background(), testUserID, CreateSessionInput{ProductCode: "BOOST_7D", Quantity: 1})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "SESSION_UNRECORDED", appErr.Code)
	details, ok := appErr.Details.(map[string]string)
	require.True(t, ok)
	require.Equal(t, testOrderID, details["order_id"])
	require.Equal(t, "cs_1", details["session_id"])
}

func TestCreateSessionHandler(t *testing.T) {
	stub := &stubStore{
		product:  boostProduct(t),
		customer: store.Customer{StripeCustomerID: "cus_existing"},
	}
	svc := newTestService(t, stub, &stubProvider{})
	handler := Handler{Service: svc, Log: zerolog.Nop()}

	body := `{"product_code":"BOOST_7D","quantity":2}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", strings.NewReader(body))
	req = req.WithContext(common.WithUserID(req.Context(), testUserID))
	rec := httptest.NewRecorder()
	handler.CreateSession(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"checkout_url"`)
	require.Contains(t, rec.Body.String(), testOrderID)
}

func TestCreateSessionHandlerRequiresAuth(t *testing.T) {
	handler := Handler{Service: newTestService(t, &stubStore{}, &stubProvider{}), Log: zerolog.Nop()}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.CreateSession(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestCreateSessionHandlerRejectsBadJSON(t *testing.T) {
	handler := Handler{Service: newTestService(t, &stubStore{}, &stubProvider{}), Log: zerolog.Nop()}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", strings.NewReader(`{"product_code":`))
	req = req.WithContext(common.WithUserID(req.Context(), testUserID))
	rec := httptest.NewRecorder()
	handler.CreateSession(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}
