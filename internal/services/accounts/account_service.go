// Package accounts manages seller accounts and their connected-account lifecycle.
package accounts

import (
	"context"
	"strings"

	stripego "github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
	"github.com/kevin07696/payme-service/internal/services/events"
	"github.com/kevin07696/payme-service/internal/services/routing"
	"github.com/kevin07696/payme-service/pkg/observability"
)

// PendingSweeper moves platform-held earnings to a connected account
type PendingSweeper interface {
	SweepPendingToConnected(ctx context.Context, userID string) (routing.SweepResult, error)
}

// maxTransitionAttempts bounds re-reads when concurrent events race on the status
const maxTransitionAttempts = 3

// Service implements the seller account operations
type Service struct {
	accounts  ports.AccountRepository
	processor ports.AccountProcessor
	sweeper   PendingSweeper
	metrics   observability.Recorder
	logger    *zap.Logger
}

// NewService creates a new account service
func NewService(
	accounts ports.AccountRepository,
	processor ports.AccountProcessor,
	sweeper PendingSweeper,
	metrics observability.Recorder,
	logger *zap.Logger,
) *Service {
	return &Service{
		accounts:  accounts,
		processor: processor,
		sweeper:   sweeper,
		metrics:   metrics,
		logger:    logger,
	}
}

// HandleAccountUpdated advances the account status from an account.updated event.
// Reaching VERIFIED sweeps pending earnings to the connected account.
func (s *Service) HandleAccountUpdated(ctx context.Context, event *stripego.Event) bool {
	update, err := events.ParseAccountUpdate(event)
	if err != nil {
		s.logger.Error("Failed to decode account update", zap.Error(err), zap.String("event_id", event.ID))
		return false
	}
	if !domain.IsConnectedAccountID(update.ID) {
		s.logger.Info("Ignoring account update without a connected account id", zap.String("event_id", event.ID))
		return false
	}

	account, err := s.accounts.GetByStripeAccountID(ctx, nil, update.ID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			s.logger.Info("No local account for connected account", zap.String("stripe_account_id", update.ID))
		} else {
			s.logger.Error("Failed to load account", zap.Error(err), zap.String("stripe_account_id", update.ID))
		}
		return false
	}

	from := account.Status
	next, changed := domain.NextStatus(from, update.DetailsSubmitted, update.ChargesEnabled)
	for attempt := 1; changed; attempt++ {
		swapped, err := s.accounts.TransitionStatus(ctx, nil, account.UserID, from, next)
		if err != nil {
			s.logger.Error("Failed to update account status",
				zap.Error(err),
				zap.String("user_id", account.UserID),
				zap.String("status", string(next)),
			)
			return false
		}
		if swapped {
			break
		}
		if attempt == maxTransitionAttempts {
			s.logger.Warn("Account status kept changing; giving up on event",
				zap.String("user_id", account.UserID),
				zap.String("event_id", event.ID),
			)
			return false
		}

		// A concurrent event moved the status; re-evaluate against the stored value
		current, err := s.accounts.Get(ctx, nil, account.UserID)
		if err != nil {
			s.logger.Error("Failed to reload account", zap.Error(err), zap.String("user_id", account.UserID))
			return false
		}
		from = current.Status
		next, changed = domain.NextStatus(from, update.DetailsSubmitted, update.ChargesEnabled)
	}
	if !changed {
		return true
	}

	s.logger.Info("Account status updated",
		zap.String("user_id", account.UserID),
		zap.String("stripe_account_id", update.ID),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
	)

	if next == domain.AccountStatusVerified {
		s.metrics.AccountVerified()
		s.sweep(ctx, account.UserID)
	}
	return true
}

// CreateConnectedAccount provisions an Express account for the principal.
// An account that already has a processor id is returned unchanged.
func (s *Service) CreateConnectedAccount(ctx context.Context, p *domain.Principal, country string) (*domain.SellerAccount, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if len(country) != 2 {
		return nil, domain.NewValidationError("country must be a two-letter ISO code")
	}
	if strings.TrimSpace(p.Email) == "" {
		return nil, domain.NewValidationError("an email address is required to create a connected account")
	}

	if _, err := s.accounts.CreateIfAbsent(ctx, nil, &domain.SellerAccount{
		UserID:  p.UserID,
		Country: country,
		Status:  domain.AccountStatusNew,
	}); err != nil {
		return nil, err
	}
	account, err := s.accounts.Get(ctx, nil, p.UserID)
	if err != nil {
		return nil, err
	}
	if account.HasConnectedAccount() {
		return account, nil
	}

	stripeAccountID, err := s.processor.CreateConnectedAccount(ctx, p.Email, country)
	if err != nil {
		s.logger.Error("Failed to create connected account", zap.Error(err), zap.String("user_id", p.UserID))
		return nil, err
	}
	if err := s.accounts.SetStripeAccount(ctx, nil, p.UserID, stripeAccountID, country); err != nil {
		s.logger.Error("Created connected account but failed to store it",
			zap.Error(err),
			zap.String("user_id", p.UserID),
			zap.String("stripe_account_id", stripeAccountID),
		)
		return nil, err
	}

	s.logger.Info("Connected account created",
		zap.String("user_id", p.UserID),
		zap.String("stripe_account_id", stripeAccountID),
		zap.String("country", country),
	)
	account.StripeAccountID = stripeAccountID
	account.Country = country
	return account, nil
}

// GetAccount returns the principal's account. A VERIFIED account with pending
// earnings is swept first so the view reflects the transfer.
func (s *Service) GetAccount(ctx context.Context, p *domain.Principal) (*domain.SellerAccount, error) {
	account, err := s.accounts.Get(ctx, nil, p.UserID)
	if err != nil {
		return nil, err
	}
	if !account.IsVerified() || account.PendingEarnings.Positive().Total() == 0 {
		return account, nil
	}

	s.sweep(ctx, p.UserID)
	return s.accounts.Get(ctx, nil, p.UserID)
}

func (s *Service) sweep(ctx context.Context, userID string) {
	result, err := s.sweeper.SweepPendingToConnected(ctx, userID)
	if err != nil {
		s.logger.Error("Sweep of pending earnings failed", zap.Error(err), zap.String("user_id", userID))
		return
	}
	if len(result.Failed) > 0 {
		s.logger.Warn("Some pending earnings were not transferred",
			zap.String("user_id", userID),
			zap.Any("failed", result.Failed),
		)
	}
}
