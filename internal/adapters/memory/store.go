// Package memory is an in-process implementation of the repository ports and the
// transaction manager. Each call is atomic under one mutex; WithTransaction does not roll
// back. It backs local development without PostgreSQL and the service concurrency tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
)

type identityKey struct {
	provider string
	subject  string
}

type txnKey struct {
	userID     string
	externalID string
}

type linkKey struct {
	kind   domain.LinkKind
	linkID string
}

// Store holds every table in maps guarded by a single mutex
type Store struct {
	now          func() time.Time
	users        map[string]domain.User
	identities   map[identityKey]string
	accounts     map[string]domain.SellerAccount
	links        map[linkKey]domain.Link
	transactions map[txnKey]domain.Transaction
	subscribers  map[string]domain.Subscriber
	mu           sync.Mutex
}

var (
	_ ports.TransactionManager = (*Store)(nil)
	_ ports.UserRepository     = (*Store)(nil)
	_ ports.AccountRepository  = (*Store)(nil)
)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		now:          func() time.Time { return time.Now().UTC() },
		users:        make(map[string]domain.User),
		identities:   make(map[identityKey]string),
		accounts:     make(map[string]domain.SellerAccount),
		links:        make(map[linkKey]domain.Link),
		transactions: make(map[txnKey]domain.Transaction),
		subscribers:  make(map[string]domain.Subscriber),
	}
}

// WithTransaction runs fn with a nil transaction
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

// WithReadOnlyTransaction runs fn with a nil transaction
func (s *Store) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

// Users

// EnsureUser returns the user behind (provider, subject), creating it on first sight
func (s *Store) EnsureUser(_ context.Context, _ ports.DBTX, provider, subject, email string) (*domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := identityKey{provider, subject}
	if id, ok := s.identities[key]; ok {
		u := s.users[id]
		return &u, false, nil
	}
	u := domain.User{ID: uuid.NewString(), Email: email, CreatedAt: s.now()}
	s.users[u.ID] = u
	s.identities[key] = u.ID
	return &u, true, nil
}

// GetByID retrieves a user
func (s *Store) GetByID(_ context.Context, _ ports.DBTX, userID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

// Accounts

// Get retrieves the seller account for a user
func (s *Store) Get(_ context.Context, _ ports.DBTX, userID string) (*domain.SellerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

// GetByStripeAccountID retrieves the seller account owning a connected account
func (s *Store) GetByStripeAccountID(_ context.Context, _ ports.DBTX, stripeAccountID string) (*domain.SellerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.StripeAccountID != "" && a.StripeAccountID == stripeAccountID {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

// CreateIfAbsent inserts the account unless the user already has one
func (s *Store) CreateIfAbsent(_ context.Context, _ ports.DBTX, account *domain.SellerAccount) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.UserID]; ok {
		return false, nil
	}
	a := *cloneAccount(*account)
	if a.Status == "" {
		a.Status = domain.AccountStatusNew
	}
	a.CreatedAt, a.UpdatedAt = s.now(), s.now()
	s.accounts[a.UserID] = a
	return true, nil
}

// SetStripeAccount attaches a connected account id and country
func (s *Store) SetStripeAccount(_ context.Context, _ ports.DBTX, userID, stripeAccountID, country string) error {
	return s.updateAccount(userID, func(a *domain.SellerAccount) {
		a.StripeAccountID = stripeAccountID
		a.Country = country
	})
}

// TransitionStatus sets the status to to only while it still equals from
func (s *Store) TransitionStatus(_ context.Context, _ ports.DBTX, userID string, from, to domain.AccountStatus) (bool, error) {
	swapped := false
	err := s.updateAccount(userID, func(a *domain.SellerAccount) {
		if a.Status == from {
			a.Status = to
			swapped = true
		}
	})
	return swapped, err
}

// IncrementEarnings adds amount to earnings[currency]
func (s *Store) IncrementEarnings(_ context.Context, _ ports.DBTX, userID, currency string, amount int64) error {
	return s.updateAccount(userID, func(a *domain.SellerAccount) {
		a.Earnings[strings.ToLower(currency)] += amount
	})
}

// IncrementPendingEarnings adds amount to pending_earnings[currency]
func (s *Store) IncrementPendingEarnings(_ context.Context, _ ports.DBTX, userID, currency string, amount int64) error {
	return s.updateAccount(userID, func(a *domain.SellerAccount) {
		a.PendingEarnings[strings.ToLower(currency)] += amount
	})
}

// ClaimPendingEarnings removes pending_earnings[currency] and returns what it held
func (s *Store) ClaimPendingEarnings(_ context.Context, _ ports.DBTX, userID, currency string) (int64, error) {
	var claimed int64
	err := s.updateAccount(userID, func(a *domain.SellerAccount) {
		c := strings.ToLower(currency)
		claimed = a.PendingEarnings[c]
		delete(a.PendingEarnings, c)
	})
	return claimed, err
}

func (s *Store) updateAccount(userID string, mutate func(*domain.SellerAccount)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a = *cloneAccount(a)
	mutate(&a)
	a.UpdatedAt = s.now()
	s.accounts[userID] = a
	return nil
}

func cloneAccount(a domain.SellerAccount) *domain.SellerAccount {
	out := a
	out.Earnings = cloneBalances(a.Earnings)
	out.PendingEarnings = cloneBalances(a.PendingEarnings)
	return &out
}

func cloneBalances(b domain.Balances) domain.Balances {
	out := make(domain.Balances, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Repository views. The account methods live on Store itself; the other tables
// have clashing method names and are exposed through these.

// Transactions returns the store's transaction repository
func (s *Store) Transactions() *TransactionStore { return &TransactionStore{s} }

// Links returns the store's link repository
func (s *Store) Links() *LinkStore { return &LinkStore{s} }

// Subscribers returns the store's subscriber repository
func (s *Store) Subscribers() *SubscriberStore { return &SubscriberStore{s} }

// TransactionStore implements ports.TransactionRepository on a Store
type TransactionStore struct{ s *Store }

var _ ports.TransactionRepository = (*TransactionStore)(nil)

// Get retrieves a transaction by its external payment id
func (t *TransactionStore) Get(_ context.Context, _ ports.DBTX, userID, externalPaymentID string) (*domain.Transaction, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	txn, ok := t.s.transactions[txnKey{userID, externalPaymentID}]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return &txn, nil
}

// InsertIfAbsent inserts the row unless (user_id, external_payment_id) exists
func (t *TransactionStore) InsertIfAbsent(_ context.Context, _ ports.DBTX, txn *domain.Transaction) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	key := txnKey{txn.UserID, txn.ExternalPaymentID}
	if _, ok := t.s.transactions[key]; ok {
		return false, nil
	}
	t.s.transactions[key] = *txn
	return true, nil
}

// PromoteFailed replaces a failed row with txn
func (t *TransactionStore) PromoteFailed(_ context.Context, _ ports.DBTX, txn *domain.Transaction) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	key := txnKey{txn.UserID, txn.ExternalPaymentID}
	existing, ok := t.s.transactions[key]
	if !ok || existing.Status != domain.TransactionStatusFailed {
		return false, nil
	}
	t.s.transactions[key] = *txn
	return true, nil
}

// ListRecent lists the newest transactions by sort key
func (t *TransactionStore) ListRecent(_ context.Context, _ ports.DBTX, userID string, limit int32) ([]*domain.Transaction, error) {
	out := t.filter(userID, func(*domain.Transaction) bool { return true })
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// ListRange lists transactions whose sort key falls within [from, to]
func (t *TransactionStore) ListRange(_ context.Context, _ ports.DBTX, userID, from, to string) ([]*domain.Transaction, error) {
	return t.filter(userID, func(txn *domain.Transaction) bool {
		return txn.SortKey >= from && txn.SortKey <= to
	}), nil
}

// MarkRefunded flags a transaction as refunded
func (t *TransactionStore) MarkRefunded(_ context.Context, _ ports.DBTX, userID, externalPaymentID, refundStatus string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	key := txnKey{userID, externalPaymentID}
	txn, ok := t.s.transactions[key]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	txn.Refunded = true
	txn.RefundStatus = refundStatus
	t.s.transactions[key] = txn
	return nil
}

func (t *TransactionStore) filter(userID string, keep func(*domain.Transaction) bool) []*domain.Transaction {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	var out []*domain.Transaction
	for k, txn := range t.s.transactions {
		if k.userID != userID {
			continue
		}
		txn := txn
		if keep(&txn) {
			out = append(out, &txn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortKey > out[j].SortKey })
	return out
}

// LinkStore implements ports.LinkRepository on a Store
type LinkStore struct{ s *Store }

var _ ports.LinkRepository = (*LinkStore)(nil)

// CreateDraft inserts a link before the processor call
func (l *LinkStore) CreateDraft(_ context.Context, _ ports.DBTX, link *domain.Link) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	key := linkKey{link.Kind, link.LinkID}
	if _, ok := l.s.links[key]; ok {
		return domain.ErrAlreadyExists
	}
	link.CreatedAt, link.UpdatedAt = l.s.now(), l.s.now()
	l.s.links[key] = *link
	return nil
}

// Get retrieves a link by id
func (l *LinkStore) Get(_ context.Context, _ ports.DBTX, kind domain.LinkKind, linkID string) (*domain.Link, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	link, ok := l.s.links[linkKey{kind, linkID}]
	if !ok {
		return nil, domain.ErrLinkNotFound
	}
	return &link, nil
}

// GetByProcessorLinkID retrieves a link by the processor's payment link id
func (l *LinkStore) GetByProcessorLinkID(_ context.Context, _ ports.DBTX, kind domain.LinkKind, processorLinkID string) (*domain.Link, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	for k, link := range l.s.links {
		if k.kind == kind && link.ProcessorLinkID != "" && link.ProcessorLinkID == processorLinkID {
			return &link, nil
		}
	}
	return nil, domain.ErrLinkNotFound
}

// CompleteDraft stores the processor link id, url and final fee details
func (l *LinkStore) CompleteDraft(_ context.Context, _ ports.DBTX, kind domain.LinkKind, linkID, processorLinkID, url string, serviceFee int64, onPlatform bool) error {
	return l.update(kind, linkID, func(link *domain.Link) {
		link.ProcessorLinkID = processorLinkID
		link.URL = url
		link.ServiceFee = serviceFee
		link.OnPlatform = onPlatform
	})
}

// UpdateStatus sets the lifecycle status
func (l *LinkStore) UpdateStatus(_ context.Context, _ ports.DBTX, kind domain.LinkKind, linkID string, status domain.LinkStatus) error {
	return l.update(kind, linkID, func(link *domain.Link) { link.Status = status })
}

// IncrementTotals adds to earnings_amount and total_amount_paid
func (l *LinkStore) IncrementTotals(_ context.Context, _ ports.DBTX, kind domain.LinkKind, linkID string, earnings, amountPaid int64) error {
	return l.update(kind, linkID, func(link *domain.Link) {
		link.EarningsAmount += earnings
		link.TotalAmountPaid += amountPaid
	})
}

// ListByUser lists a user's links, newest first
func (l *LinkStore) ListByUser(_ context.Context, _ ports.DBTX, kind domain.LinkKind, userID string) ([]*domain.Link, error) {
	out := l.filter(kind, func(link *domain.Link) bool { return link.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListExpired lists ACTIVE links whose expires_at is at or before now
func (l *LinkStore) ListExpired(_ context.Context, _ ports.DBTX, kind domain.LinkKind, now time.Time, limit int32) ([]*domain.Link, error) {
	out := l.filter(kind, func(link *domain.Link) bool { return link.IsActive() && link.IsExpiredAt(now) })
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (l *LinkStore) update(kind domain.LinkKind, linkID string, mutate func(*domain.Link)) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	key := linkKey{kind, linkID}
	link, ok := l.s.links[key]
	if !ok {
		return domain.ErrLinkNotFound
	}
	mutate(&link)
	link.UpdatedAt = l.s.now()
	l.s.links[key] = link
	return nil
}

func (l *LinkStore) filter(kind domain.LinkKind, keep func(*domain.Link) bool) []*domain.Link {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	var out []*domain.Link
	for k, link := range l.s.links {
		if k.kind != kind {
			continue
		}
		link := link
		if keep(&link) {
			out = append(out, &link)
		}
	}
	return out
}

// SubscriberStore implements ports.SubscriberRepository on a Store
type SubscriberStore struct{ s *Store }

var _ ports.SubscriberRepository = (*SubscriberStore)(nil)

// Upsert inserts or refreshes a subscriber. A canceled subscriber stays canceled.
func (b *SubscriberStore) Upsert(_ context.Context, _ ports.DBTX, sub *domain.Subscriber) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	existing, ok := b.s.subscribers[sub.SubscriptionID]
	if !ok {
		row := *sub
		if row.Status == "" {
			row.Status = domain.SubscriberStatusActive
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = b.s.now()
		}
		row.UpdatedAt = b.s.now()
		b.s.subscribers[row.SubscriptionID] = row
		return nil
	}
	if sub.CustomerEmail != "" {
		existing.CustomerEmail = sub.CustomerEmail
	}
	if !existing.IsCanceled() && sub.Status != "" {
		existing.Status = sub.Status
	}
	existing.UpdatedAt = b.s.now()
	b.s.subscribers[sub.SubscriptionID] = existing
	return nil
}

// Get retrieves a subscriber by processor subscription id
func (b *SubscriberStore) Get(_ context.Context, _ ports.DBTX, subscriptionID string) (*domain.Subscriber, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	sub, ok := b.s.subscribers[subscriptionID]
	if !ok {
		return nil, domain.ErrSubscriberNotFound
	}
	return &sub, nil
}

// UpdateStatus sets the subscriber status
func (b *SubscriberStore) UpdateStatus(_ context.Context, _ ports.DBTX, subscriptionID string, status domain.SubscriberStatus) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	sub, ok := b.s.subscribers[subscriptionID]
	if !ok {
		return domain.ErrSubscriberNotFound
	}
	sub.Status = status
	sub.UpdatedAt = b.s.now()
	b.s.subscribers[subscriptionID] = sub
	return nil
}

// ListByLink lists subscribers of one of the user's links, newest first
func (b *SubscriberStore) ListByLink(_ context.Context, _ ports.DBTX, userID, linkID string) ([]*domain.Subscriber, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	var out []*domain.Subscriber
	for _, sub := range b.s.subscribers {
		if sub.UserID == userID && sub.LinkID == linkID {
			sub := sub
			out = append(out, &sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
