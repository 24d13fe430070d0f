package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
	"github.com/kevin07696/payme-service/internal/handlers/response"
	"github.com/kevin07696/payme-service/internal/services/links"
)

// LinkService manages payment and subscription links
type LinkService interface {
	CreatePaymentLink(ctx context.Context, p *domain.Principal, req links.CreateLinkRequest) (*domain.Link, error)
	CreateSubscriptionLink(ctx context.Context, p *domain.Principal, req links.CreateLinkRequest) (*domain.Link, error)
	DisableLink(ctx context.Context, p *domain.Principal, kind domain.LinkKind, linkID string) (*domain.Link, error)
	ListLinks(ctx context.Context, p *domain.Principal, kind domain.LinkKind) ([]*domain.Link, error)
	GetLink(ctx context.Context, p *domain.Principal, kind domain.LinkKind, linkID string) (*domain.Link, error)
	LinkPayments(ctx context.Context, p *domain.Principal, kind domain.LinkKind, linkID string) ([]ports.PaymentSummary, error)
}

// LinkHandler serves the /links routes
type LinkHandler struct {
	links  LinkService
	logger *zap.Logger
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(links LinkService, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{links: links, logger: logger}
}

// createLinkBody carries expires_at as a calendar date
type createLinkBody struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Currency      string   `json:"currency"`
	Interval      string   `json:"interval"`
	ExpiresAt     string   `json:"expires_at"`
	RequireFields []string `json:"require_fields"`
	Amount        int64    `json:"amount"`
}

func (b createLinkBody) request() (links.CreateLinkRequest, error) {
	req := links.CreateLinkRequest{
		Title:         b.Title,
		Description:   b.Description,
		Currency:      b.Currency,
		Interval:      b.Interval,
		RequireFields: b.RequireFields,
		Amount:        b.Amount,
	}
	if b.ExpiresAt != "" {
		t, err := time.Parse(time.DateOnly, b.ExpiresAt)
		if err != nil {
			return req, domain.NewValidationError("expires_at must be YYYY-MM-DD")
		}
		req.ExpiresAt = &t
	}
	return req, nil
}

// LinksResponse wraps a link listing
type LinksResponse struct {
	Links []*domain.Link `json:"links"`
}

// CreatePaymentLink handles POST /links/payment
func (h *LinkHandler) CreatePaymentLink(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.links.CreatePaymentLink)
}

// CreateSubscriptionLink handles POST /links/subscription
func (h *LinkHandler) CreateSubscriptionLink(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.links.CreateSubscriptionLink)
}

type createFunc func(ctx context.Context, p *domain.Principal, req links.CreateLinkRequest) (*domain.Link, error)

func (h *LinkHandler) create(w http.ResponseWriter, r *http.Request, create createFunc) {
	var body createLinkBody
	if err := decode(w, r, &body); err != nil {
		response.Error(w, err)
		return
	}
	req, err := body.request()
	if err != nil {
		response.Error(w, err)
		return
	}

	link, err := create(r.Context(), principal(r), req)
	if err != nil {
		h.logger.Warn("Create link failed", zap.Error(err), zap.String("path", r.URL.Path))
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, link)
}

// ListLinks handles GET /links/{kind}
func (h *LinkHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	kind, ok := linkKind(w, r)
	if !ok {
		return
	}
	items, err := h.links.ListLinks(r.Context(), principal(r), kind)
	if err != nil {
		response.Error(w, err)
		return
	}
	if items == nil {
		items = []*domain.Link{}
	}
	response.JSON(w, http.StatusOK, LinksResponse{Links: items})
}

// DisableLink handles POST /links/{kind}/{id}/disable
func (h *LinkHandler) DisableLink(w http.ResponseWriter, r *http.Request) {
	kind, ok := linkKind(w, r)
	if !ok {
		return
	}
	link, err := h.links.DisableLink(r.Context(), principal(r), kind, chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, link)
}

// GetLink handles GET /links/{kind}/{id}
func (h *LinkHandler) GetLink(w http.ResponseWriter, r *http.Request) {
	kind, ok := linkKind(w, r)
	if !ok {
		return
	}
	link, err := h.links.GetLink(r.Context(), principal(r), kind, chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, link)
}

// PaymentsResponse wraps the processor payments of one link
type PaymentsResponse struct {
	Payments []ports.PaymentSummary `json:"payments"`
}

// LinkPayments handles GET /links/{kind}/{id}/payments
func (h *LinkHandler) LinkPayments(w http.ResponseWriter, r *http.Request) {
	kind, ok := linkKind(w, r)
	if !ok {
		return
	}
	payments, err := h.links.LinkPayments(r.Context(), principal(r), kind, chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, err)
		return
	}
	if payments == nil {
		payments = []ports.PaymentSummary{}
	}
	response.JSON(w, http.StatusOK, PaymentsResponse{Payments: payments})
}

func linkKind(w http.ResponseWriter, r *http.Request) (domain.LinkKind, bool) {
	kind := domain.LinkKind(chi.URLParam(r, "kind"))
	if !kind.IsValid() {
		response.Error(w, domain.NewValidationError("link kind must be payment or subscription"))
		return "", false
	}
	return kind, true
}
