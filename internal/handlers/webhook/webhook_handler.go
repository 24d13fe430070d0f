// Package webhook receives Stripe events and dispatches them to the services that own them.
package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	stripego "github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/services/events"
	"github.com/kevin07696/payme-service/pkg/observability"
)

// maxBodyBytes caps the request body Stripe may send
const maxBodyBytes = 64 << 10

// EventVerifier checks the Stripe-Signature header and decodes the event
type EventVerifier interface {
	Configured() bool
	Verify(payload []byte, signatureHeader string) (stripego.Event, error)
}

// PaymentEvents reconciles payment events
type PaymentEvents interface {
	HandlePaymentSucceeded(ctx context.Context, event *stripego.Event) bool
	HandlePaymentFailed(ctx context.Context, event *stripego.Event) bool
	HandleInvoicePaid(ctx context.Context, event *stripego.Event) bool
}

// SubscriberEvents tracks subscription lifecycle events
type SubscriberEvents interface {
	HandleCheckoutCompleted(ctx context.Context, event *stripego.Event) bool
	HandleSubscriptionCreated(ctx context.Context, event *stripego.Event) bool
	HandleSubscriptionUpdated(ctx context.Context, event *stripego.Event) bool
	HandleSubscriptionDeleted(ctx context.Context, event *stripego.Event) bool
}

// AccountEvents tracks connected account onboarding
type AccountEvents interface {
	HandleAccountUpdated(ctx context.Context, event *stripego.Event) bool
}

type eventFunc func(ctx context.Context, event *stripego.Event) bool

// Handler serves POST /webhooks/platform/stripe
type Handler struct {
	verifier EventVerifier
	dispatch map[string]eventFunc
	metrics  observability.Recorder
	logger   *zap.Logger
}

// NewHandler wires the dispatch table
func NewHandler(
	verifier EventVerifier,
	payments PaymentEvents,
	subscribers SubscriberEvents,
	accounts AccountEvents,
	metrics observability.Recorder,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		verifier: verifier,
		metrics:  metrics,
		logger:   logger,
		dispatch: map[string]eventFunc{
			events.TypePaymentIntentSucceeded:   payments.HandlePaymentSucceeded,
			events.TypeChargeSucceeded:          payments.HandlePaymentSucceeded,
			events.TypePaymentIntentFailed:      payments.HandlePaymentFailed,
			events.TypeInvoicePaid:              payments.HandleInvoicePaid,
			events.TypeCheckoutSessionCompleted: subscribers.HandleCheckoutCompleted,
			events.TypeSubscriptionCreated:      subscribers.HandleSubscriptionCreated,
			events.TypeSubscriptionUpdated:      subscribers.HandleSubscriptionUpdated,
			events.TypeSubscriptionDeleted:      subscribers.HandleSubscriptionDeleted,
			events.TypeAccountUpdated:           accounts.HandleAccountUpdated,
		},
	}
}

// ServeHTTP verifies and dispatches one event. Verified events are always
// acknowledged with 200 so Stripe does not retry reconciliation outcomes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.verifier.Configured() {
		h.logger.Error("Webhook received but no signing secret is configured")
		http.Error(w, "webhook secret not configured", http.StatusInternalServerError)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("Webhook payload too large", zap.Int64("limit", tooLarge.Limit))
		}
		h.metrics.WebhookEvent("unknown", observability.OutcomeRejected)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	event, err := h.verifier.Verify(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("Webhook signature verification failed",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr),
		)
		h.metrics.WebhookEvent("unknown", observability.OutcomeRejected)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	eventType := string(event.Type)
	outcome := h.handle(r.Context(), &event)
	h.metrics.WebhookEvent(eventType, outcome)
	h.logger.Info("Webhook event handled",
		zap.String("event_id", event.ID),
		zap.String("type", eventType),
		zap.String("account", event.Account),
		zap.String("outcome", outcome),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received":true}`))
}

func (h *Handler) handle(ctx context.Context, event *stripego.Event) string {
	fn, ok := h.dispatch[string(event.Type)]
	if !ok {
		h.logger.Debug("Ignoring unhandled event type", zap.String("type", string(event.Type)))
		return observability.OutcomeIgnored
	}
	if fn(ctx, event) {
		return observability.OutcomeProcessed
	}
	return observability.OutcomeSkipped
}
