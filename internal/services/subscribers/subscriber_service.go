// Package subscribers tracks customer subscriptions taken out on subscription links.
package subscribers

import (
	"context"
	"strconv"
	"time"

	stripego "github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
	"github.com/kevin07696/payme-service/internal/services/events"
)

const checkoutModeSubscription = "subscription"

// Processor is the processor surface the subscriber service needs
type Processor interface {
	ports.ObjectFetcher
	ports.SubscriptionProcessor
}

// Service implements subscriber bookkeeping
type Service struct {
	subscribers ports.SubscriberRepository
	links       ports.LinkRepository
	accounts    ports.AccountRepository
	processor   Processor
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a new subscriber service
func NewService(
	subscribers ports.SubscriberRepository,
	links ports.LinkRepository,
	accounts ports.AccountRepository,
	processor Processor,
	logger *zap.Logger,
) *Service {
	return &Service{
		subscribers: subscribers,
		links:       links,
		accounts:    accounts,
		processor:   processor,
		logger:      logger,
		now:         time.Now,
	}
}

// HandleSubscriptionCreated records the subscriber, backfilling attribution onto
// the subscription from its first payment intent when the link did not copy it
func (s *Service) HandleSubscriptionCreated(ctx context.Context, event *stripego.Event) bool {
	sub, err := events.ParseSubscription(event)
	if err != nil || sub.ID == "" {
		s.logger.Warn("Failed to decode subscription", zap.Error(err), zap.String("event_id", event.ID))
		return false
	}

	md := sub.Metadata
	if md[events.MetaUserID] == "" || md[events.MetaLinkID] == "" {
		md = s.backfill(ctx, sub, event.Account)
	}
	userID, linkID := md[events.MetaUserID], md[events.MetaLinkID]
	if userID == "" || linkID == "" {
		s.logger.Info("Subscription has no link attribution",
			zap.String("subscription_id", sub.ID),
			zap.String("event_id", event.ID),
		)
		return false
	}

	status := domain.SubscriberStatusActive
	if sub.IsCanceled() {
		status = domain.SubscriberStatusCanceled
	}
	return s.upsert(ctx, &domain.Subscriber{
		SubscriptionID: sub.ID,
		UserID:         userID,
		LinkID:         linkID,
		Status:         status,
		CreatedAt:      s.unix(sub.Created),
	})
}

// backfill copies user_id, link_id and base_amount from latest_invoice's payment
// intent onto the subscription. It returns the best metadata it found.
func (s *Service) backfill(ctx context.Context, sub *events.Subscription, account string) map[string]string {
	if sub.LatestInvoice.ID == "" {
		return sub.Metadata
	}
	piID, err := s.processor.InvoicePaymentIntentID(ctx, sub.LatestInvoice.ID, account)
	if err != nil || piID == "" {
		s.logger.Debug("Could not resolve invoice payment intent",
			zap.Error(err),
			zap.String("subscription_id", sub.ID),
			zap.String("invoice_id", sub.LatestInvoice.ID),
		)
		return sub.Metadata
	}
	piMD, err := s.processor.PaymentIntentMetadata(ctx, piID, account)
	if err != nil {
		s.logger.Debug("Could not read payment intent metadata",
			zap.Error(err),
			zap.String("payment_intent_id", piID),
		)
		return sub.Metadata
	}
	if piMD[events.MetaUserID] == "" || piMD[events.MetaLinkID] == "" {
		return sub.Metadata
	}

	md := map[string]string{
		events.MetaUserID:     piMD[events.MetaUserID],
		events.MetaLinkID:     piMD[events.MetaLinkID],
		events.MetaBaseAmount: piMD[events.MetaBaseAmount],
	}
	if err := s.processor.UpdateSubscriptionMetadata(ctx, sub.ID, account, md); err != nil {
		s.logger.Warn("Could not set metadata on subscription", zap.Error(err), zap.String("subscription_id", sub.ID))
	} else {
		s.logger.Info("Set subscription metadata from payment intent",
			zap.String("subscription_id", sub.ID),
			zap.String("user_id", md[events.MetaUserID]),
			zap.String("link_id", md[events.MetaLinkID]),
		)
	}
	return md
}

// HandleCheckoutCompleted stamps link attribution onto the subscription a
// checkout created and records the subscriber. Other checkout modes are ignored.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, event *stripego.Event) bool {
	session, err := events.ParseCheckoutSession(event)
	if err != nil {
		s.logger.Warn("Failed to decode checkout session", zap.Error(err), zap.String("event_id", event.ID))
		return false
	}
	if session.Mode != checkoutModeSubscription || session.Subscription.ID == "" {
		return true
	}
	if session.PaymentLink.ID == "" {
		s.logger.Debug("Checkout session has no payment link", zap.String("subscription_id", session.Subscription.ID))
		return true
	}

	link, err := s.links.GetByProcessorLinkID(ctx, nil, domain.LinkKindSubscription, session.PaymentLink.ID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			s.logger.Info("No subscription link for payment link",
				zap.String("processor_link_id", session.PaymentLink.ID),
				zap.String("event_id", event.ID),
			)
		} else {
			s.logger.Error("Failed to look up subscription link", zap.Error(err))
		}
		return false
	}

	account, err := s.linkAccount(ctx, link, event.Account)
	if err != nil {
		s.logger.Error("Failed to resolve link account", zap.Error(err), zap.String("link_id", link.LinkID))
		return false
	}

	md := map[string]string{
		events.MetaUserID:     link.UserID,
		events.MetaLinkID:     link.LinkID,
		events.MetaBaseAmount: strconv.FormatInt(link.BaseAmount, 10),
	}
	if err := s.processor.UpdateSubscriptionMetadata(ctx, session.Subscription.ID, account, md); err != nil {
		s.logger.Warn("Could not set metadata on subscription",
			zap.Error(err),
			zap.String("subscription_id", session.Subscription.ID),
		)
		return false
	}

	return s.upsert(ctx, &domain.Subscriber{
		SubscriptionID: session.Subscription.ID,
		UserID:         link.UserID,
		LinkID:         link.LinkID,
		Status:         domain.SubscriberStatusActive,
		CustomerEmail:  session.Email(),
		CreatedAt:      s.unix(session.Created),
	})
}

// linkAccount returns the connected account a link lives on, or "" for the platform.
// The event's own account wins when the event came from a connected account.
func (s *Service) linkAccount(ctx context.Context, link *domain.Link, eventAccount string) (string, error) {
	if eventAccount != "" || link.OnPlatform {
		return eventAccount, nil
	}
	acct, err := s.accounts.Get(ctx, nil, link.UserID)
	if err != nil {
		return "", err
	}
	return acct.StripeAccountID, nil
}

// HandleSubscriptionUpdated marks the subscriber canceled once the processor reports it
func (s *Service) HandleSubscriptionUpdated(ctx context.Context, event *stripego.Event) bool {
	sub, err := events.ParseSubscription(event)
	if err != nil || sub.ID == "" {
		s.logger.Warn("Failed to decode subscription", zap.Error(err), zap.String("event_id", event.ID))
		return false
	}
	if !sub.IsCanceled() {
		return true
	}
	return s.markCanceled(ctx, sub.ID)
}

// HandleSubscriptionDeleted marks the subscriber canceled
func (s *Service) HandleSubscriptionDeleted(ctx context.Context, event *stripego.Event) bool {
	sub, err := events.ParseSubscription(event)
	if err != nil || sub.ID == "" {
		s.logger.Warn("Failed to decode subscription", zap.Error(err), zap.String("event_id", event.ID))
		return false
	}
	return s.markCanceled(ctx, sub.ID)
}

func (s *Service) markCanceled(ctx context.Context, subscriptionID string) bool {
	err := s.subscribers.UpdateStatus(ctx, nil, subscriptionID, domain.SubscriberStatusCanceled)
	switch {
	case err == nil:
		s.logger.Info("Subscriber canceled", zap.String("subscription_id", subscriptionID))
		return true
	case domain.IsNotFoundError(err):
		s.logger.Info("Cancellation for unknown subscriber", zap.String("subscription_id", subscriptionID))
		return false
	default:
		s.logger.Error("Failed to cancel subscriber", zap.Error(err), zap.String("subscription_id", subscriptionID))
		return false
	}
}

func (s *Service) upsert(ctx context.Context, sub *domain.Subscriber) bool {
	if err := s.subscribers.Upsert(ctx, nil, sub); err != nil {
		s.logger.Error("Failed to upsert subscriber",
			zap.Error(err),
			zap.String("subscription_id", sub.SubscriptionID),
		)
		return false
	}
	s.logger.Info("Subscriber recorded",
		zap.String("subscription_id", sub.SubscriptionID),
		zap.String("user_id", sub.UserID),
		zap.String("link_id", sub.LinkID),
	)
	return true
}

func (s *Service) unix(ts int64) time.Time {
	if ts <= 0 {
		return s.now().UTC()
	}
	return time.Unix(ts, 0).UTC()
}

// CancelSubscription cancels one of the principal's subscribers at the processor
// and marks it canceled
func (s *Service) CancelSubscription(ctx context.Context, p *domain.Principal, subscriptionID string) (*domain.Subscriber, error) {
	sub, err := s.subscribers.Get(ctx, nil, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != p.UserID {
		return nil, domain.ErrSubscriberNotFound
	}
	if sub.IsCanceled() {
		return sub, nil
	}

	account := ""
	link, err := s.links.Get(ctx, nil, domain.LinkKindSubscription, sub.LinkID)
	switch {
	case err == nil && !link.OnPlatform:
		account = p.StripeAccountID()
		if !domain.IsConnectedAccountID(account) {
			return nil, domain.ErrStripeAccountRequired
		}
	case err != nil && !domain.IsNotFoundError(err):
		return nil, err
	}

	if err := s.processor.CancelSubscription(ctx, subscriptionID, account); err != nil {
		s.logger.Error("Failed to cancel subscription",
			zap.Error(err),
			zap.String("subscription_id", subscriptionID),
		)
		return nil, err
	}
	if err := s.subscribers.UpdateStatus(ctx, nil, subscriptionID, domain.SubscriberStatusCanceled); err != nil {
		return nil, domain.NewStorageError("failed to mark subscriber canceled", err)
	}

	s.logger.Info("Subscription canceled by seller",
		zap.String("user_id", p.UserID),
		zap.String("subscription_id", subscriptionID),
	)
	sub.Status = domain.SubscriberStatusCanceled
	return sub, nil
}

// ListSubscribers lists the subscribers of one of the principal's links
func (s *Service) ListSubscribers(ctx context.Context, p *domain.Principal, linkID string) ([]*domain.Subscriber, error) {
	link, err := s.links.Get(ctx, nil, domain.LinkKindSubscription, linkID)
	if err != nil {
		return nil, err
	}
	if link.UserID != p.UserID {
		return nil, domain.ErrLinkNotFound
	}
	return s.subscribers.ListByLink(ctx, nil, p.UserID, linkID)
}
