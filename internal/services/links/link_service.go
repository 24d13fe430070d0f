// Package links creates, lists and disables sellers' checkout links.
package links

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
	"github.com/kevin07696/payme-service/internal/services/routing"
	"github.com/kevin07696/payme-service/pkg/observability"
)

const (
	maxTitleLength       = 100
	maxDescriptionLength = 500
	defaultCurrency      = "gbp"
)

var linkCurrencies = map[string]bool{"usd": true, "eur": true, "gbp": true}

// Quoter prices a base amount
type Quoter interface {
	Quote(baseCents int64, currency string) (domain.FeeQuote, error)
}

// LinkRouter hands out the link service for an account or an existing link
type LinkRouter interface {
	ForAccount(account *domain.SellerAccount) (routing.LinkService, error)
	ForLink(link *domain.Link, stripeAccountID string) (routing.LinkService, error)
}

// CreateLinkRequest is the seller's input for a new link
type CreateLinkRequest struct {
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Currency      string     `json:"currency"`
	Interval      string     `json:"interval,omitempty"`
	RequireFields []string   `json:"require_fields"`
	Amount        int64      `json:"amount"`
}

// Service implements link management
type Service struct {
	links   ports.LinkRepository
	router  LinkRouter
	quoter  Quoter
	metrics observability.Recorder
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new link service
func NewService(links ports.LinkRepository, router LinkRouter, quoter Quoter, metrics observability.Recorder, logger *zap.Logger) *Service {
	return &Service{
		links:   links,
		router:  router,
		quoter:  quoter,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// CreatePaymentLink creates a one-time checkout link
func (s *Service) CreatePaymentLink(ctx context.Context, p *domain.Principal, req CreateLinkRequest) (*domain.Link, error) {
	return s.create(ctx, p, domain.LinkKindPayment, req)
}

// CreateSubscriptionLink creates a recurring checkout link
func (s *Service) CreateSubscriptionLink(ctx context.Context, p *domain.Principal, req CreateLinkRequest) (*domain.Link, error) {
	return s.create(ctx, p, domain.LinkKindSubscription, req)
}

func (s *Service) create(ctx context.Context, p *domain.Principal, kind domain.LinkKind, req CreateLinkRequest) (*domain.Link, error) {
	link, err := s.validate(p, kind, req)
	if err != nil {
		return nil, err
	}

	quote, err := s.quoter.Quote(link.BaseAmount, link.Currency)
	if err != nil {
		return nil, err
	}
	link.TotalAmount = quote.TotalCents
	link.ServiceFee = quote.ServiceFeeCents

	if err := s.links.CreateDraft(ctx, nil, link); err != nil {
		return nil, err
	}

	svc, err := s.router.ForAccount(p.Account)
	if err != nil {
		s.markFailed(ctx, link)
		return nil, err
	}

	linkReq := routing.LinkRequest{Link: link, Quote: quote, UserEmail: p.Email}
	var checkout *ports.CheckoutLink
	if kind == domain.LinkKindSubscription {
		checkout, err = svc.CreateSubscription(ctx, linkReq)
	} else {
		checkout, err = svc.CreateOneTime(ctx, linkReq)
	}
	if err != nil {
		s.logger.Error("Failed to create checkout link",
			zap.Error(err),
			zap.String("link_id", link.LinkID),
			zap.String("kind", string(kind)),
		)
		s.markFailed(ctx, link)
		return nil, err
	}

	onPlatform := svc.OnPlatform()
	if err := s.links.CompleteDraft(ctx, nil, kind, link.LinkID, checkout.ID, checkout.URL, quote.ServiceFeeCents, onPlatform); err != nil {
		s.logger.Error("Failed to save checkout link",
			zap.Error(err),
			zap.String("link_id", link.LinkID),
			zap.String("processor_link_id", checkout.ID),
		)
		if derr := svc.Disable(ctx, checkout.ID); derr != nil {
			s.logger.Warn("Failed to disable orphaned checkout link",
				zap.Error(derr),
				zap.String("processor_link_id", checkout.ID),
			)
		}
		return nil, domain.NewStorageError("failed to save link", err)
	}

	link.ProcessorLinkID = checkout.ID
	link.URL = checkout.URL
	link.OnPlatform = onPlatform
	s.metrics.PaymentLinkCreated(string(kind))
	s.logger.Info("Checkout link created",
		zap.String("user_id", p.UserID),
		zap.String("link_id", link.LinkID),
		zap.String("kind", string(kind)),
		zap.Int64("base_amount", link.BaseAmount),
		zap.Int64("total_amount", link.TotalAmount),
		zap.Bool("on_platform", onPlatform),
	)
	return link, nil
}

func (s *Service) markFailed(ctx context.Context, link *domain.Link) {
	if err := s.links.UpdateStatus(ctx, nil, link.Kind, link.LinkID, domain.LinkStatusFailed); err != nil {
		s.logger.Warn("Failed to mark draft link as failed", zap.Error(err), zap.String("link_id", link.LinkID))
	}
}

func (s *Service) validate(p *domain.Principal, kind domain.LinkKind, req CreateLinkRequest) (*domain.Link, error) {
	title := strings.TrimSpace(req.Title)
	if n := utf8.RuneCountInString(title); n < 1 || n > maxTitleLength {
		return nil, domain.NewValidationError("title must be between 1 and 100 characters")
	}
	description := strings.TrimSpace(req.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return nil, domain.NewValidationError("description must be at most 500 characters")
	}
	if req.Amount <= 0 {
		return nil, domain.NewValidationError("amount must be greater than zero")
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if !linkCurrencies[currency] {
		return nil, domain.NewValidationError("currency must be one of usd, eur, gbp").WithDetail("currency", currency)
	}

	fields, err := domain.NormalizeRequireFields(req.RequireFields)
	if err != nil {
		return nil, err
	}

	var interval domain.BillingInterval
	if kind == domain.LinkKindSubscription {
		interval = domain.BillingInterval(strings.ToLower(strings.TrimSpace(req.Interval)))
		if !interval.IsValid() {
			return nil, domain.NewValidationError("interval must be one of day, week, month, year")
		}
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		eod := domain.EndOfDayUTC(*req.ExpiresAt)
		if !eod.After(s.now()) {
			return nil, domain.NewValidationError("expires_at must be in the future")
		}
		expiresAt = &eod
	}

	return &domain.Link{
		LinkID:        uuid.NewString(),
		UserID:        p.UserID,
		Kind:          kind,
		Title:         title,
		Description:   description,
		Currency:      currency,
		Interval:      interval,
		RequireFields: fields,
		ExpiresAt:     expiresAt,
		BaseAmount:    req.Amount,
		Status:        domain.LinkStatusActive,
	}, nil
}

// DisableLink deactivates one of the principal's links at the processor and locally
func (s *Service) DisableLink(ctx context.Context, p *domain.Principal, kind domain.LinkKind, linkID string) (*domain.Link, error) {
	link, err := s.owned(ctx, p, kind, linkID)
	if err != nil {
		return nil, err
	}
	if link.ProcessorLinkID == "" {
		return nil, domain.NewValidationError("link is not yet active")
	}

	svc, err := s.router.ForLink(link, p.StripeAccountID())
	if err != nil {
		return nil, err
	}
	if err := svc.Disable(ctx, link.ProcessorLinkID); err != nil {
		s.logger.Error("Failed to disable checkout link", zap.Error(err), zap.String("link_id", linkID))
		return nil, err
	}
	if err := s.links.UpdateStatus(ctx, nil, kind, linkID, domain.LinkStatusDisabled); err != nil {
		return nil, err
	}

	s.logger.Info("Checkout link disabled", zap.String("user_id", p.UserID), zap.String("link_id", linkID))
	link.Status = domain.LinkStatusDisabled
	return link, nil
}

// ListLinks lists the principal's published links, newest first
func (s *Service) ListLinks(ctx context.Context, p *domain.Principal, kind domain.LinkKind) ([]*domain.Link, error) {
	all, err := s.links.ListByUser(ctx, nil, kind, p.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Link, 0, len(all))
	for _, l := range all {
		if !l.IsDraft() {
			out = append(out, l)
		}
	}
	return out, nil
}

// GetLink returns one of the principal's links
func (s *Service) GetLink(ctx context.Context, p *domain.Principal, kind domain.LinkKind, linkID string) (*domain.Link, error) {
	return s.owned(ctx, p, kind, linkID)
}

// LinkPayments lists the processor-side payments made through one of the
// principal's links, on whichever account the link was created on
func (s *Service) LinkPayments(ctx context.Context, p *domain.Principal, kind domain.LinkKind, linkID string) ([]ports.PaymentSummary, error) {
	link, err := s.owned(ctx, p, kind, linkID)
	if err != nil {
		return nil, err
	}
	svc, err := s.router.ForLink(link, p.StripeAccountID())
	if err != nil {
		return nil, err
	}
	payments, err := svc.ListTransactions(ctx, p.UserID, linkID)
	if err != nil {
		s.logger.Error("Failed to list link payments", zap.Error(err), zap.String("link_id", linkID))
		return nil, err
	}
	return payments, nil
}

func (s *Service) owned(ctx context.Context, p *domain.Principal, kind domain.LinkKind, linkID string) (*domain.Link, error) {
	if !kind.IsValid() {
		return nil, domain.NewValidationError("link kind must be payment or subscription")
	}
	link, err := s.links.Get(ctx, nil, kind, linkID)
	if err != nil {
		return nil, err
	}
	if link.UserID != p.UserID {
		return nil, domain.ErrLinkNotFound
	}
	return link, nil
}
