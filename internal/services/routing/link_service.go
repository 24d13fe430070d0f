// Package routing decides where a seller's money settles and builds checkout
// links on that account.
package routing

import (
	"context"
	"strconv"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
	"github.com/kevin07696/payme-service/internal/services/events"
	"github.com/kevin07696/payme-service/internal/services/fees"
)

// SettlementTarget names the account a link's payments settle into
type SettlementTarget string

const (
	TargetPlatform  SettlementTarget = "platform"
	TargetConnected SettlementTarget = "connected"
)

// account_type values written into link metadata
const (
	accountTypePlatform  = "platform"
	accountTypeConnected = "connected_account"
)

// SelectSettlementTarget routes VERIFIED sellers to their connected account and
// everyone else to the platform
func SelectSettlementTarget(status domain.AccountStatus) SettlementTarget {
	if status == domain.AccountStatusVerified {
		return TargetConnected
	}
	return TargetPlatform
}

// LinkRequest is a drafted link plus its price, ready for the processor
type LinkRequest struct {
	Link      *domain.Link
	Quote     domain.FeeQuote
	UserEmail string
}

// LinkService creates and manages checkout links on one settlement account
type LinkService interface {
	CreateOneTime(ctx context.Context, req LinkRequest) (*ports.CheckoutLink, error)
	CreateSubscription(ctx context.Context, req LinkRequest) (*ports.CheckoutLink, error)
	Disable(ctx context.Context, processorLinkID string) error
	ListTransactions(ctx context.Context, userID, linkID string) ([]ports.PaymentSummary, error)
	OnPlatform() bool
}

// PlatformLinkService keeps funds on the platform account
type PlatformLinkService struct {
	processor ports.CheckoutLinkProcessor
}

// ConnectedLinkService creates links directly on a seller's connected account
type ConnectedLinkService struct {
	processor ports.CheckoutLinkProcessor
	accountID string
}

var (
	_ LinkService = (*PlatformLinkService)(nil)
	_ LinkService = (*ConnectedLinkService)(nil)
)

// NewPlatformLinkService creates a platform link service
func NewPlatformLinkService(processor ports.CheckoutLinkProcessor) *PlatformLinkService {
	return &PlatformLinkService{processor: processor}
}

// NewConnectedLinkService creates a link service for a connected account
func NewConnectedLinkService(processor ports.CheckoutLinkProcessor, stripeAccountID string) (*ConnectedLinkService, error) {
	if !domain.IsConnectedAccountID(stripeAccountID) {
		return nil, domain.ErrStripeAccountRequired
	}
	return &ConnectedLinkService{processor: processor, accountID: stripeAccountID}, nil
}

func (s *PlatformLinkService) CreateOneTime(ctx context.Context, req LinkRequest) (*ports.CheckoutLink, error) {
	return s.processor.CreateCheckoutLink(ctx, checkoutParams(req, domain.LinkKindPayment, accountTypePlatform))
}

func (s *PlatformLinkService) CreateSubscription(ctx context.Context, req LinkRequest) (*ports.CheckoutLink, error) {
	return s.processor.CreateCheckoutLink(ctx, checkoutParams(req, domain.LinkKindSubscription, accountTypePlatform))
}

func (s *PlatformLinkService) Disable(ctx context.Context, processorLinkID string) error {
	return s.processor.DisableCheckoutLink(ctx, processorLinkID, "")
}

func (s *PlatformLinkService) ListTransactions(ctx context.Context, userID, linkID string) ([]ports.PaymentSummary, error) {
	return s.processor.SearchPayments(ctx, userID, linkID, "")
}

func (s *PlatformLinkService) OnPlatform() bool { return true }

// CreateOneTime charges the service fee as an application fee
func (s *ConnectedLinkService) CreateOneTime(ctx context.Context, req LinkRequest) (*ports.CheckoutLink, error) {
	params := checkoutParams(req, domain.LinkKindPayment, accountTypeConnected)
	params.ConnectedAccountID = s.accountID
	params.ApplicationFeeAmount = req.Quote.ServiceFeeCents
	return s.processor.CreateCheckoutLink(ctx, params)
}

// CreateSubscription charges the service fee as a percentage of each invoice
func (s *ConnectedLinkService) CreateSubscription(ctx context.Context, req LinkRequest) (*ports.CheckoutLink, error) {
	params := checkoutParams(req, domain.LinkKindSubscription, accountTypeConnected)
	params.ConnectedAccountID = s.accountID
	params.ApplicationFeePercent = fees.ApplicationFeePercent(req.Quote)
	return s.processor.CreateCheckoutLink(ctx, params)
}

func (s *ConnectedLinkService) Disable(ctx context.Context, processorLinkID string) error {
	return s.processor.DisableCheckoutLink(ctx, processorLinkID, s.accountID)
}

func (s *ConnectedLinkService) ListTransactions(ctx context.Context, userID, linkID string) ([]ports.PaymentSummary, error) {
	return s.processor.SearchPayments(ctx, userID, linkID, s.accountID)
}

func (s *ConnectedLinkService) OnPlatform() bool { return false }

func checkoutParams(req LinkRequest, kind domain.LinkKind, accountType string) ports.CheckoutLinkParams {
	l := req.Link
	return ports.CheckoutLinkParams{
		Kind:          kind,
		Title:         l.Title,
		Description:   l.Description,
		Currency:      l.Currency,
		Interval:      l.Interval,
		TotalAmount:   req.Quote.TotalCents,
		RequireFields: l.RequireFields,
		Metadata: map[string]string{
			events.MetaUserID:     l.UserID,
			events.MetaUserEmail:  req.UserEmail,
			events.MetaLinkID:     l.LinkID,
			events.MetaLinkType:   kind.MetadataType(),
			events.MetaAccount:    accountType,
			events.MetaBaseAmount: strconv.FormatInt(l.BaseAmount, 10),
		},
	}
}

// Router hands out the LinkService for a seller or an existing link
type Router struct {
	processor ports.CheckoutLinkProcessor
	platform  *PlatformLinkService
}

// NewRouter creates a router over the processor
func NewRouter(processor ports.CheckoutLinkProcessor) *Router {
	return &Router{processor: processor, platform: NewPlatformLinkService(processor)}
}

// ForAccount picks the link service for new links of a seller
func (r *Router) ForAccount(account *domain.SellerAccount) (LinkService, error) {
	if account == nil || SelectSettlementTarget(account.Status) == TargetPlatform {
		return r.platform, nil
	}
	return NewConnectedLinkService(r.processor, account.StripeAccountID)
}

// ForLink picks the link service that owns an existing link
func (r *Router) ForLink(link *domain.Link, stripeAccountID string) (LinkService, error) {
	if link.OnPlatform {
		return r.platform, nil
	}
	return NewConnectedLinkService(r.processor, stripeAccountID)
}
