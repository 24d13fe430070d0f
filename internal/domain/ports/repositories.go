package ports

import (
	"context"
	"time"

	"github.com/kevin07696/payme-service/internal/domain"
)

// Every repository method takes a DBTX so callers can compose calls inside
// TransactionManager.WithTransaction. A nil DBTX runs against the pool.

// UserRepository persists users and their external identities
type UserRepository interface {
	// EnsureUser returns the user mapped to (provider, subject), creating both rows if absent.
	// created reports whether a new user was inserted.
	EnsureUser(ctx context.Context, tx DBTX, provider, subject, email string) (user *domain.User, created bool, err error)

	// GetByID retrieves a user
	GetByID(ctx context.Context, db DBTX, userID string) (*domain.User, error)
}

// AccountRepository persists seller accounts and their balance maps
type AccountRepository interface {
	// Get retrieves the seller account for a user
	Get(ctx context.Context, db DBTX, userID string) (*domain.SellerAccount, error)

	// GetByStripeAccountID retrieves the seller account owning a connected account
	GetByStripeAccountID(ctx context.Context, db DBTX, stripeAccountID string) (*domain.SellerAccount, error)

	// CreateIfAbsent inserts the account unless the user already has one
	CreateIfAbsent(ctx context.Context, tx DBTX, account *domain.SellerAccount) (created bool, err error)

	// SetStripeAccount attaches a connected account id and country
	SetStripeAccount(ctx context.Context, tx DBTX, userID, stripeAccountID, country string) error

	// TransitionStatus moves the status from one value to another. swapped is false,
	// with no write, when the stored status is no longer from.
	TransitionStatus(ctx context.Context, tx DBTX, userID string, from, to domain.AccountStatus) (swapped bool, err error)

	// IncrementEarnings atomically adds amount to earnings[currency]
	IncrementEarnings(ctx context.Context, tx DBTX, userID, currency string, amount int64) error

	// IncrementPendingEarnings atomically adds amount to pending_earnings[currency]
	IncrementPendingEarnings(ctx context.Context, tx DBTX, userID, currency string, amount int64) error

	// ClaimPendingEarnings atomically removes pending_earnings[currency] and returns it.
	// Of two concurrent claims, only one sees the balance.
	ClaimPendingEarnings(ctx context.Context, tx DBTX, userID, currency string) (claimed int64, err error)
}

// LinkRepository persists payment and subscription links
type LinkRepository interface {
	// CreateDraft inserts a link before the processor call
	CreateDraft(ctx context.Context, tx DBTX, link *domain.Link) error

	// Get retrieves a link by id
	Get(ctx context.Context, db DBTX, kind domain.LinkKind, linkID string) (*domain.Link, error)

	// GetByProcessorLinkID retrieves a link by the processor's payment link id
	GetByProcessorLinkID(ctx context.Context, db DBTX, kind domain.LinkKind, processorLinkID string) (*domain.Link, error)

	// CompleteDraft stores the processor link id, url and final fee details
	CompleteDraft(ctx context.Context, tx DBTX, kind domain.LinkKind, linkID, processorLinkID, url string, serviceFee int64, onPlatform bool) error

	// UpdateStatus sets the lifecycle status
	UpdateStatus(ctx context.Context, tx DBTX, kind domain.LinkKind, linkID string, status domain.LinkStatus) error

	// IncrementTotals atomically adds to earnings_amount and total_amount_paid
	IncrementTotals(ctx context.Context, tx DBTX, kind domain.LinkKind, linkID string, earnings, amountPaid int64) error

	// ListByUser lists a user's links, newest first
	ListByUser(ctx context.Context, db DBTX, kind domain.LinkKind, userID string) ([]*domain.Link, error)

	// ListExpired lists ACTIVE links whose expires_at is at or before now
	ListExpired(ctx context.Context, db DBTX, kind domain.LinkKind, now time.Time, limit int32) ([]*domain.Link, error)
}

// TransactionRepository persists payment attempts
type TransactionRepository interface {
	// Get retrieves a transaction by its external payment id
	Get(ctx context.Context, db DBTX, userID, externalPaymentID string) (*domain.Transaction, error)

	// InsertIfAbsent inserts the row unless (user_id, external_payment_id) exists.
	// inserted is false when the row was already there.
	InsertIfAbsent(ctx context.Context, tx DBTX, txn *domain.Transaction) (inserted bool, err error)

	// PromoteFailed overwrites a failed row with the succeeded attempt for the same payment.
	// promoted is false when no failed row exists, including when another caller promoted it.
	PromoteFailed(ctx context.Context, tx DBTX, txn *domain.Transaction) (promoted bool, err error)

	// ListRecent lists the newest transactions by sort key
	ListRecent(ctx context.Context, db DBTX, userID string, limit int32) ([]*domain.Transaction, error)

	// ListRange lists transactions whose sort key falls within [from, to]
	ListRange(ctx context.Context, db DBTX, userID, from, to string) ([]*domain.Transaction, error)

	// MarkRefunded flags a transaction as refunded
	MarkRefunded(ctx context.Context, tx DBTX, userID, externalPaymentID, refundStatus string) error
}

// SubscriberRepository persists subscriptions taken out on subscription links
type SubscriberRepository interface {
	// Upsert inserts or refreshes a subscriber row
	Upsert(ctx context.Context, tx DBTX, sub *domain.Subscriber) error

	// Get retrieves a subscriber by processor subscription id
	Get(ctx context.Context, db DBTX, subscriptionID string) (*domain.Subscriber, error)

	// UpdateStatus sets the subscriber status
	UpdateStatus(ctx context.Context, tx DBTX, subscriptionID string, status domain.SubscriberStatus) error

	// ListByLink lists subscribers of one of the user's links
	ListByLink(ctx context.Context, db DBTX, userID, linkID string) ([]*domain.Subscriber, error)
}
