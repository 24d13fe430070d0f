package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/handlers/response"
)

// SubscriberService lists and cancels subscribers
type SubscriberService interface {
	ListSubscribers(ctx context.Context, p *domain.Principal, linkID string) ([]*domain.Subscriber, error)
	CancelSubscription(ctx context.Context, p *domain.Principal, subscriptionID string) (*domain.Subscriber, error)
}

// SubscriberHandler serves the /subscriptions routes
type SubscriberHandler struct {
	subscribers SubscriberService
	logger      *zap.Logger
}

// NewSubscriberHandler creates a new subscriber handler
func NewSubscriberHandler(subscribers SubscriberService, logger *zap.Logger) *SubscriberHandler {
	return &SubscriberHandler{subscribers: subscribers, logger: logger}
}

// SubscribersResponse wraps a subscriber listing
type SubscribersResponse struct {
	Subscribers []*domain.Subscriber `json:"subscribers"`
}

// List handles GET /subscriptions/{linkID}/subscribers
func (h *SubscriberHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.subscribers.ListSubscribers(r.Context(), principal(r), chi.URLParam(r, "linkID"))
	if err != nil {
		response.Error(w, err)
		return
	}
	if items == nil {
		items = []*domain.Subscriber{}
	}
	response.JSON(w, http.StatusOK, SubscribersResponse{Subscribers: items})
}

// Cancel handles POST /subscriptions/{id}/cancel
func (h *SubscriberHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscribers.CancelSubscription(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Warn("Cancel subscription failed", zap.Error(err), zap.String("subscription_id", chi.URLParam(r, "id")))
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, sub)
}
