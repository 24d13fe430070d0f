// Package reconciliation applies processor payment events to the ledger.
//
// Every handler reports success as a bool: true means the event needs no redelivery
// (recorded now or earlier), false means it was unattributable or failed.
package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	stripego "github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
	"github.com/kevin07696/payme-service/internal/services/events"
	"github.com/kevin07696/payme-service/internal/services/fees"
	"github.com/kevin07696/payme-service/pkg/observability"
)

// RecordExtractor turns events into payment records
type RecordExtractor interface {
	SucceededPayment(ctx context.Context, event *stripego.Event) (*domain.PaymentRecord, error)
	FailedPayment(ctx context.Context, event *stripego.Event) (*domain.PaymentRecord, error)
	PaidInvoice(ctx context.Context, event *stripego.Event) (*domain.PaymentRecord, error)
	EnrichCustomer(ctx context.Context, rec *domain.PaymentRecord)
}

// Service records payments and credits seller balances
type Service struct {
	db          ports.TransactionManager
	accounts    ports.AccountRepository
	links       ports.LinkRepository
	txns        ports.TransactionRepository
	subscribers ports.SubscriberRepository
	extractor   RecordExtractor
	metrics     observability.Recorder
	logger      *zap.Logger
}

// NewService creates a new reconciliation service
func NewService(
	db ports.TransactionManager,
	accounts ports.AccountRepository,
	links ports.LinkRepository,
	txns ports.TransactionRepository,
	subscribers ports.SubscriberRepository,
	extractor RecordExtractor,
	metrics observability.Recorder,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:          db,
		accounts:    accounts,
		links:       links,
		txns:        txns,
		subscribers: subscribers,
		extractor:   extractor,
		metrics:     metrics,
		logger:      logger,
	}
}

// HandlePaymentSucceeded records a one-time link payment and credits earnings
func (s *Service) HandlePaymentSucceeded(ctx context.Context, event *stripego.Event) bool {
	rec, err := s.extractor.SucceededPayment(ctx, event)
	if err != nil {
		s.logger.Error("Failed to extract payment", zap.Error(err), zap.String("event_id", event.ID))
		return false
	}
	if rec == nil {
		return false
	}
	_, ok := s.settle(ctx, rec, domain.LinkKindPayment)
	return ok
}

// HandlePaymentFailed records a failed attempt without touching any balance
func (s *Service) HandlePaymentFailed(ctx context.Context, event *stripego.Event) bool {
	rec, err := s.extractor.FailedPayment(ctx, event)
	if err != nil {
		s.logger.Error("Failed to extract failed payment", zap.Error(err), zap.String("event_id", event.ID))
		return false
	}
	if rec == nil {
		return false
	}

	txn := rec.Transaction(domain.LinkKindPayment, domain.TransactionStatusFailed)
	inserted, err := s.txns.InsertIfAbsent(ctx, nil, txn)
	if err != nil {
		s.logger.Error("Failed to store failed payment",
			zap.Error(err),
			zap.String("user_id", rec.UserID),
			zap.String("payment_id", rec.ExternalID),
		)
		return false
	}
	if inserted {
		s.metrics.TransactionRecorded(string(domain.LinkKindPayment), string(txn.Status), rec.Currency, rec.Amount)
		s.logger.Info("Stored failed payment",
			zap.String("user_id", rec.UserID),
			zap.String("link_id", rec.LinkID),
			zap.Int64("amount", rec.Amount),
		)
	}
	return true
}

// HandleInvoicePaid credits a subscription payment. The first invoice of a
// subscription also records the subscriber, including on redelivery.
func (s *Service) HandleInvoicePaid(ctx context.Context, event *stripego.Event) bool {
	rec, err := s.extractor.PaidInvoice(ctx, event)
	if err != nil {
		s.logger.Error("Failed to extract invoice", zap.Error(err), zap.String("event_id", event.ID))
		return false
	}
	if rec == nil {
		return false
	}

	_, ok := s.settle(ctx, rec, domain.LinkKindSubscription)
	if !ok {
		return false
	}

	if rec.BillingReason == events.BillingReasonSubscriptionCreate && rec.SubscriptionID != "" {
		sub := &domain.Subscriber{
			SubscriptionID: rec.SubscriptionID,
			UserID:         rec.UserID,
			LinkID:         rec.LinkID,
			Status:         domain.SubscriberStatusActive,
			CustomerEmail:  rec.Customer.Email,
			CreatedAt:      rec.Created,
		}
		if err := s.subscribers.Upsert(ctx, nil, sub); err != nil {
			// The payment is recorded; a later subscription event can still create the row
			s.logger.Warn("Failed to upsert subscriber from invoice",
				zap.Error(err),
				zap.String("subscription_id", rec.SubscriptionID),
			)
		}
	}
	return true
}

// settle runs the idempotent insert and balance credits. recorded is false when
// the payment had already succeeded. An earlier failed attempt does not count.
func (s *Service) settle(ctx context.Context, rec *domain.PaymentRecord, kind domain.LinkKind) (recorded, ok bool) {
	existing, err := s.txns.Get(ctx, nil, rec.UserID, rec.ExternalID)
	switch {
	case err == nil && existing.IsSucceeded():
		s.logger.Debug("Payment already recorded",
			zap.String("user_id", rec.UserID),
			zap.String("payment_id", rec.ExternalID),
		)
		return false, true
	case err != nil && !domain.IsNotFoundError(err):
		s.logger.Error("Failed to check for existing payment",
			zap.Error(err),
			zap.String("payment_id", rec.ExternalID),
		)
		return false, false
	}

	s.extractor.EnrichCustomer(ctx, rec)
	earnings := fees.EarningsFromBaseAmount(rec.BaseAmount)
	txn := rec.Transaction(kind, domain.TransactionStatusSucceeded)

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		inserted, err := s.txns.InsertIfAbsent(ctx, tx, txn)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if !inserted {
			// A declined attempt on the same payment is superseded by the success
			promoted, err := s.txns.PromoteFailed(ctx, tx, txn)
			if err != nil {
				return fmt.Errorf("promote failed transaction: %w", err)
			}
			if !promoted {
				return errAlreadyProcessed
			}
		}

		if err := s.links.IncrementTotals(ctx, tx, kind, rec.LinkID, earnings, rec.Amount); err != nil {
			return fmt.Errorf("increment link totals: %w", err)
		}
		if earnings <= 0 {
			return nil
		}
		if rec.SettledOnPlatform() {
			if err := s.accounts.IncrementPendingEarnings(ctx, tx, rec.UserID, rec.Currency, earnings); err != nil {
				return fmt.Errorf("increment pending earnings: %w", err)
			}
		}
		if err := s.accounts.IncrementEarnings(ctx, tx, rec.UserID, rec.Currency, earnings); err != nil {
			return fmt.Errorf("increment earnings: %w", err)
		}
		return nil
	})

	if errors.Is(err, errAlreadyProcessed) {
		s.logger.Debug("Payment recorded concurrently",
			zap.String("user_id", rec.UserID),
			zap.String("payment_id", rec.ExternalID),
		)
		return false, true
	}
	if err != nil {
		s.logger.Error("Failed to record payment",
			zap.Error(err),
			zap.String("user_id", rec.UserID),
			zap.String("link_id", rec.LinkID),
			zap.String("payment_id", rec.ExternalID),
		)
		return false, false
	}

	s.metrics.TransactionRecorded(string(kind), string(txn.Status), rec.Currency, rec.Amount)
	s.logger.Info("Stored payment",
		zap.String("user_id", rec.UserID),
		zap.String("link_id", rec.LinkID),
		zap.String("payment_id", rec.ExternalID),
		zap.Int64("amount", rec.Amount),
		zap.Int64("earnings", earnings),
		zap.Bool("platform_held", rec.SettledOnPlatform()),
	)
	return true, true
}

// errAlreadyProcessed rolls back the transaction when the insert found an existing row
var errAlreadyProcessed = errors.New("payment already processed")
