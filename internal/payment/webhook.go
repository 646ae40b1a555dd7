package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ollync/backend-payments/internal/common"
	"github.com/ollync/backend-payments/internal/events"
	"github.com/ollync/backend-payments/internal/obs"
	"github.com/ollync/backend-payments/internal/promotion"
	"github.com/ollync/backend-payments/internal/store"
)

// EventKind is the closed set of provider event types this service reacts to.
type EventKind int

const (
	// EventUnknown covers every event type without a dispatch arm. Unknown
	// events are recorded and acknowledged but cause no state change.
	EventUnknown EventKind = iota
	// EventCheckoutCompleted moves the order to paid and applies promotions.
	EventCheckoutCompleted
	// EventCheckoutExpired moves the order to cancelled.
	EventCheckoutExpired
)

// KindOf maps a provider event type string onto the closed dispatch set.
func KindOf(eventType string) EventKind {
	switch strings.TrimSpace(eventType) {
	case "checkout.session.completed":
		return EventCheckoutCompleted
	case "checkout.session.expired":
		return EventCheckoutExpired
	default:
		return EventUnknown
	}
}

// WebhookStore is the slice of the store the webhook processor depends on.
type WebhookStore interface {
	InsertPaymentEvent(ctx context.Context, arg store.InsertPaymentEventParams) (store.PaymentEvent, error)
	GetPaymentEventByEventID(ctx context.Context, eventID string) (store.PaymentEvent, error)
	MarkPaymentEventProcessed(ctx context.Context, arg store.MarkPaymentEventProcessedParams) error
	MarkOrderPaid(ctx context.Context, arg store.MarkOrderPaidParams) (int64, error)
	MarkOrderCancelled(ctx context.Context, arg store.MarkOrderCancelledParams) (int64, error)
	ApplyListingBoost(ctx context.Context, arg store.ApplyListingBoostParams) (int64, error)
	ApplyListingSponsorship(ctx context.Context, arg store.ApplyListingSponsorshipParams) (int64, error)
}

// EventPublisher fans processed payment facts out to the internal event bus.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, aggregateID string, payload any)
}

// eventEnvelope is the provider event wire shape. Only the fields the
// dispatch needs are decoded; the raw payload is stored verbatim.
type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object sessionObject `json:"object"`
	} `json:"data"`
}

type sessionObject struct {
	ID            string          `json:"id"`
	PaymentIntent string          `json:"payment_intent"`
	Metadata      SessionMetadata `json:"metadata"`
}

const maxWebhookBody = 1 << 20

// WebhookProcessor verifies, records, and applies inbound provider events.
type WebhookProcessor struct {
	Secret    string
	Store     WebhookStore
	Redis     redis.UniversalClient
	Policy    promotion.Policy
	Bus       EventPublisher
	Log       zerolog.Logger
	ReplayTTL time.Duration
	Now       func() time.Time
}

func (p *WebhookProcessor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Handle is the HTTP entrypoint for provider webhooks. Signature verification
// runs on the raw body before any parsing. A valid event that fails a
// downstream write is answered with 500 so the provider redelivers; the
// durable event-id gate makes the redelivery safe.
func (p *WebhookProcessor) Handle(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(p.Secret) == "" {
		common.JSONError(w, http.StatusInternalServerError, "NOT_CONFIGURED", "webhook secret not configured", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "unable to read request body", nil)
		return
	}

	header, err := ParseSignatureHeader(r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, ErrSignatureMissing) {
			common.JSONError(w, http.StatusBadRequest, "SIGNATURE_MISSING", "signature header required", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "SIGNATURE_INVALID", "malformed signature header", nil)
		return
	}
	if err := VerifySignature(p.Secret, header, body); err != nil {
		p.Log.Warn().Str("remote_addr", r.RemoteAddr).Msg("webhook signature mismatch")
		common.JSONError(w, http.StatusBadRequest, "SIGNATURE_INVALID", "signature verification failed", nil)
		return
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed event payload", nil)
		return
	}
	if strings.TrimSpace(envelope.ID) == "" || strings.TrimSpace(envelope.Type) == "" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "event id and type are required", nil)
		return
	}

	ctx := r.Context()
	if p.seenRecently(ctx, envelope.ID) {
		p.observe(envelope.Type, "replay")
		common.Text(w, http.StatusOK, "ok")
		return
	}

	if err := p.Process(ctx, envelope, body); err != nil {
		p.Log.Error().Err(err).
			Str("event_id", envelope.ID).
			Str("event_type", envelope.Type).
			Msg("webhook processing failed")
		p.observe(envelope.Type, "error")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "event processing failed", nil)
		return
	}

	p.markSeen(ctx, envelope.ID)
	p.observe(envelope.Type, "ok")
	common.Text(w, http.StatusOK, "ok")
}

// Process records the event and applies its state change exactly once.
func (p *WebhookProcessor) Process(ctx context.Context, envelope eventEnvelope, raw []byte) error {
	orderID, hasOrder := p.parseOrderID(envelope)

	params := store.InsertPaymentEventParams{
		EventID:   envelope.ID,
		EventType: envelope.Type,
		Payload:   raw,
	}
	if hasOrder {
		params.OrderID = orderID
	}

	recovering := false
	event, err := p.Store.InsertPaymentEvent(ctx, params)
	if err != nil {
		if !store.IsUniqueViolation(err) {
			return fmt.Errorf("insert payment event: %w", err)
		}
		// Duplicate delivery. If the first delivery completed, skip; if it
		// crashed mid-processing, finish the job using the original row.
		existing, getErr := p.Store.GetPaymentEventByEventID(ctx, envelope.ID)
		if getErr != nil {
			return fmt.Errorf("load duplicate payment event: %w", getErr)
		}
		if existing.Processed {
			p.Log.Debug().Str("event_id", envelope.ID).Msg("duplicate webhook delivery skipped")
			return nil
		}
		event = existing
		recovering = true
	}

	if err := p.dispatch(ctx, envelope, orderID, hasOrder, recovering); err != nil {
		return err
	}

	if err := p.Store.MarkPaymentEventProcessed(ctx, store.MarkPaymentEventProcessedParams{
		ID:          event.ID,
		ProcessedAt: store.ToTimestamptz(p.now()),
	}); err != nil {
		return fmt.Errorf("mark payment event processed: %w", err)
	}
	return nil
}

func (p *WebhookProcessor) dispatch(ctx context.Context, envelope eventEnvelope, orderID pgtype.UUID, hasOrder bool, recovering bool) error {
	switch KindOf(envelope.Type) {
	case EventCheckoutCompleted:
		if !hasOrder {
			// Nothing to act on; keep the audit row so reconciliation can
			// inspect the payload.
			p.Log.Error().Str("event_id", envelope.ID).Msg("completed event without usable order_id metadata")
			return nil
		}
		return p.applyCompleted(ctx, envelope, orderID, recovering)
	case EventCheckoutExpired:
		if !hasOrder {
			p.Log.Error().Str("event_id", envelope.ID).Msg("expired event without usable order_id metadata")
			return nil
		}
		return p.applyExpired(ctx, envelope, orderID)
	default:
		p.Log.Info().
			Str("event_id", envelope.ID).
			Str("event_type", envelope.Type).
			Msg("unhandled webhook event type recorded")
		return nil
	}
}

func (p *WebhookProcessor) applyCompleted(ctx context.Context, envelope eventEnvelope, orderID pgtype.UUID, recovering bool) error {
	session := envelope.Data.Object
	rows, err := p.Store.MarkOrderPaid(ctx, store.MarkOrderPaidParams{
		ID:                    orderID,
		StripeSessionID:       store.ToText(session.ID),
		StripePaymentIntentID: store.ToText(session.PaymentIntent),
		PaidAt:                store.ToTimestamptz(p.now()),
	})
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	if rows == 0 {
		if !recovering {
			p.Log.Info().
				Str("order_id", store.UUIDString(orderID)).
				Str("event_id", envelope.ID).
				Msg("order already terminal, payment event is a no-op")
			return nil
		}
		// Recovering an unprocessed event: the crashed attempt already moved
		// the order to paid, so the promotion write is still owed. Resetting
		// the window from now is safe to repeat.
		p.Log.Info().
			Str("order_id", store.UUIDString(orderID)).
			Str("event_id", envelope.ID).
			Msg("order already paid by interrupted delivery, resuming promotion")
		return p.applyPromotion(ctx, session.Metadata)
	}

	p.publish(ctx, events.TopicOrderPaid, store.UUIDString(orderID), map[string]any{
		"order_id":     store.UUIDString(orderID),
		"user_id":      session.Metadata.UserID,
		"product_code": session.Metadata.ProductCode,
		"session_id":   session.ID,
	})

	return p.applyPromotion(ctx, session.Metadata)
}

func (p *WebhookProcessor) applyExpired(ctx context.Context, envelope eventEnvelope, orderID pgtype.UUID) error {
	rows, err := p.Store.MarkOrderCancelled(ctx, store.MarkOrderCancelledParams{
		ID:          orderID,
		CancelledAt: store.ToTimestamptz(p.now()),
	})
	if err != nil {
		return fmt.Errorf("mark order cancelled: %w", err)
	}
	if rows == 0 {
		p.Log.Info().
			Str("order_id", store.UUIDString(orderID)).
			Str("event_id", envelope.ID).
			Msg("order already terminal, expiry event is a no-op")
		return nil
	}
	p.publish(ctx, events.TopicOrderCanceled, store.UUIDString(orderID), map[string]any{
		"order_id": store.UUIDString(orderID),
		"user_id":  envelope.Data.Object.Metadata.UserID,
	})
	return nil
}

// applyPromotion writes the promotion window a paid product unlocks. Windows
// always reset from now; they never extend a prior expiry.
func (p *WebhookProcessor) applyPromotion(ctx context.Context, meta SessionMetadata) error {
	if strings.TrimSpace(meta.PostID) == "" {
		return nil
	}
	grant, ok := p.Policy.Grant(meta.ProductCode)
	if !ok {
		return nil
	}
	listingID, err := store.ToUUID(meta.PostID)
	if err != nil {
		p.Log.Error().Str("post_id", meta.PostID).Msg("promotion metadata carries invalid listing id")
		return nil
	}

	now := p.now()
	until := store.ToTimestamptz(now.Add(grant.Duration))
	updated := store.ToTimestamptz(now)

	var rows int64
	switch grant.Kind {
	case promotion.KindSponsor:
		rows, err = p.Store.ApplyListingSponsorship(ctx, store.ApplyListingSponsorshipParams{
			ID: listingID, SponsoredUntil: until, UpdatedAt: updated,
		})
	default:
		rows, err = p.Store.ApplyListingBoost(ctx, store.ApplyListingBoostParams{
			ID: listingID, BoostedUntil: until, UpdatedAt: updated,
		})
	}
	if err != nil {
		return fmt.Errorf("apply %s promotion: %w", grant.Kind, err)
	}
	if rows == 0 {
		p.Log.Warn().Str("post_id", meta.PostID).Msg("promotion target listing not found")
		return nil
	}

	if obs.PromotionAppliedTotal != nil {
		obs.PromotionAppliedTotal.WithLabelValues(string(grant.Kind)).Inc()
	}
	p.publish(ctx, events.TopicPromotionApplied, meta.PostID, map[string]any{
		"post_id":      meta.PostID,
		"product_code": meta.ProductCode,
		"kind":         string(grant.Kind),
		"until":        now.Add(grant.Duration).UTC(),
	})
	return nil
}

func (p *WebhookProcessor) parseOrderID(envelope eventEnvelope) (pgtype.UUID, bool) {
	raw := strings.TrimSpace(envelope.Data.Object.Metadata.OrderID)
	if raw == "" {
		return pgtype.UUID{}, false
	}
	id, err := store.ToUUID(raw)
	if err != nil {
		return pgtype.UUID{}, false
	}
	return id, true
}

func (p *WebhookProcessor) replayKey(eventID string) string {
	return "payments:webhook:evt:" + eventID
}

// seenRecently is a best-effort fast path; the payment_events unique
// constraint stays authoritative when Redis is cold or unavailable.
func (p *WebhookProcessor) seenRecently(ctx context.Context, eventID string) bool {
	if p.Redis == nil {
		return false
	}
	n, err := p.Redis.Exists(ctx, p.replayKey(eventID)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// markSeen records the event id only after processing succeeded, so a failed
// attempt stays retryable.
func (p *WebhookProcessor) markSeen(ctx context.Context, eventID string) {
	if p.Redis == nil {
		return
	}
	ttl := p.ReplayTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := p.Redis.SetNX(ctx, p.replayKey(eventID), "1", ttl).Err(); err != nil {
		p.Log.Debug().Err(err).Msg("webhook replay key not recorded")
	}
}

func (p *WebhookProcessor) publish(ctx context.Context, topic, aggregateID string, payload any) {
	if p.Bus == nil {
		return
	}
	p.Bus.Publish(ctx, topic, aggregateID, payload)
}

func (p *WebhookProcessor) observe(eventType, result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(eventType, result).Inc()
	}
}
