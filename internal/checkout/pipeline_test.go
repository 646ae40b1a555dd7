package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ollync/backend-payments/internal/payment"
	"github.com/ollync/backend-payments/internal/promotion"
	"github.com/ollync/backend-payments/internal/store"
)

// stubSettlementStore backs the webhook side of the pipeline test.
type stubSettlementStore struct {
	events       map[string]store.PaymentEvent
	paidCalls    []store.MarkOrderPaidParams
	boostCalls   []store.ApplyListingBoostParams
	sponsorCalls []store.ApplyListingSponsorshipParams
	processed    int
}

func (s *stubSettlementStore) InsertPaymentEvent(_ context.Context, arg store.InsertPaymentEventParams) (store.PaymentEvent, error) {
	if _, ok := s.events[arg.EventID]; ok {
		return store.PaymentEvent{}, &pgconn.PgError{Code: "23505"}
	}
	event := store.PaymentEvent{EventID: arg.EventID, EventType: arg.EventType, OrderID: arg.OrderID, Payload: arg.Payload}
	s.events[arg.EventID] = event
	return event, nil
}

func (s *stubSettlementStore) GetPaymentEventByEventID(_ context.Context, eventID string) (store.PaymentEvent, error) {
	return s.events[eventID], nil
}

func (s *stubSettlementStore) MarkPaymentEventProcessed(_ context.Context, _ store.MarkPaymentEventProcessedParams) error {
	s.processed++
	return nil
}

func (s *stubSettlementStore) MarkOrderPaid(_ context.Context, arg store.MarkOrderPaidParams) (int64, error) {
	s.paidCalls = append(s.paidCalls, arg)
	return 1, nil
}

func (s *stubSettlementStore) MarkOrderCancelled(_ context.Context, _ store.MarkOrderCancelledParams) (int64, error) {
	return 1, nil
}

func (s *stubSettlementStore) ApplyListingBoost(_ context.Context, arg store.ApplyListingBoostParams) (int64, error) {
	s.boostCalls = append(s.boostCalls, arg)
	return 1, nil
}

func (s *stubSettlementStore) ApplyListingSponsorship(_ context.Context, arg store.ApplyListingSponsorshipParams) (int64, error) {
	s.sponsorCalls = append(s.sponsorCalls, arg)
	return 1, nil
}

// The full purchase path: the session created by checkout carries the metadata
// the webhook later relies on, and the settlement acts on exactly that order.
func TestCheckoutThenWebhookSettlement(t *testing.T) {
	listingID := "4f1ad4b1-9d5a-4f2e-8c7a-57f5f7f0e9b2"

	checkoutStore := &stubStore{
		product:  boostProduct(t),
		customer: store.Customer{StripeCustomerID: "cus_existing"},
	}
	provider := &stubProvider{}
	svc := newTestService(t, checkoutStore, provider)

	result, err := svc.CreateSession(context.Background(), testUserID, CreateSessionInput{
		ProductCode: "BOOST_7D",
		Quantity:    1,
		Metadata:    map[string]string{"post_id": listingID},
	})
	require.NoError(t, err)
	require.Len(t, provider.sessionCalls, 1)
	meta := provider.sessionCalls[0].Metadata
	require.Equal(t, result.OrderID, meta.OrderID)

	settlement := &stubSettlementStore{events: map[string]store.PaymentEvent{}}
	processor := &payment.WebhookProcessor{
		Secret: "whsec_pipeline",
		Store:  settlement,
		Policy: promotion.DefaultPolicy(),
		Log:    zerolog.Nop(),
	}

	body, err := json.Marshal(map[string]any{
		"id":   "evt_pipeline_1",
		"type": "checkout.session.completed",
		"data": map[string]any{
			"object": map[string]any{
				"id":             result.SessionID,
				"payment_intent": "pi_pipeline_1",
				"metadata":       meta,
			},
		},
	})
	require.NoError(t, err)

	ts := time.Now().Unix()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(string(body)))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, payment.ComputeSignature("whsec_pipeline", ts, body)))
	rec := httptest.NewRecorder()
	processor.Handle(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, settlement.paidCalls, 1)
	require.Equal(t, result.SessionID, settlement.paidCalls[0].StripeSessionID.String)

	wantOrderID, err := store.ToUUID(result.OrderID)
	require.NoError(t, err)
	require.Equal(t, wantOrderID, settlement.paidCalls[0].ID)

	require.Len(t, settlement.boostCalls, 1)
	require.Empty(t, settlement.sponsorCalls)
	require.Equal(t, 1, settlement.processed)
}
