package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
)

// SubscriberRepository implements ports.SubscriberRepository
type SubscriberRepository struct {
	executor
}

var _ ports.SubscriberRepository = (*SubscriberRepository)(nil)

// NewSubscriberRepository creates a new subscriber repository
func NewSubscriberRepository(pool *pgxpool.Pool) *SubscriberRepository {
	return &SubscriberRepository{executor{pool: pool}}
}

const subscriberColumns = `subscription_id, user_id::text, link_id, status, customer_email, created_at, updated_at`

// Upsert inserts or refreshes a subscriber row. An existing canceled row stays canceled.
func (r *SubscriberRepository) Upsert(ctx context.Context, tx ports.DBTX, sub *domain.Subscriber) error {
	status := sub.Status
	if status == "" {
		status = domain.SubscriberStatusActive
	}
	_, err := r.q(tx).Exec(ctx, `
		INSERT INTO subscribers (subscription_id, user_id, link_id, status, customer_email, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
		ON CONFLICT (subscription_id) DO UPDATE SET
			customer_email = CASE WHEN EXCLUDED.customer_email <> '' THEN EXCLUDED.customer_email ELSE subscribers.customer_email END,
			status = CASE WHEN subscribers.status = 'canceled' THEN subscribers.status ELSE EXCLUDED.status END,
			updated_at = NOW()`,
		sub.SubscriptionID, sub.UserID, sub.LinkID, string(status), sub.CustomerEmail, nullTime(sub.CreatedAt),
	)
	if err != nil {
		return domain.NewStorageError("upsert subscriber", err)
	}
	return nil
}

// Get retrieves a subscriber by processor subscription id
func (r *SubscriberRepository) Get(ctx context.Context, db ports.DBTX, subscriptionID string) (*domain.Subscriber, error) {
	sub, err := scanSubscriber(r.q(db).QueryRow(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE subscription_id = $1`, subscriptionID))
	if err != nil {
		return nil, notFoundOr(err, domain.ErrSubscriberNotFound, "get subscriber")
	}
	return sub, nil
}

// UpdateStatus sets the subscriber status
func (r *SubscriberRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, subscriptionID string, status domain.SubscriberStatus) error {
	tag, err := r.q(tx).Exec(ctx,
		`UPDATE subscribers SET status = $2, updated_at = NOW() WHERE subscription_id = $1`,
		subscriptionID, string(status))
	if err != nil {
		return domain.NewStorageError("update subscriber status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriberNotFound
	}
	return nil
}

// ListByLink lists subscribers of one of the user's links, newest first
func (r *SubscriberRepository) ListByLink(ctx context.Context, db ports.DBTX, userID, linkID string) ([]*domain.Subscriber, error) {
	rows, err := r.q(db).Query(ctx, `
		SELECT `+subscriberColumns+` FROM subscribers
		WHERE user_id = $1 AND link_id = $2
		ORDER BY created_at DESC`,
		userID, linkID)
	if err != nil {
		return nil, domain.NewStorageError("list subscribers", err)
	}
	defer rows.Close()

	var out []*domain.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, domain.NewStorageError("scan subscriber", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate subscribers", err)
	}
	return out, nil
}

func scanSubscriber(row pgx.Row) (*domain.Subscriber, error) {
	var (
		s      domain.Subscriber
		status string
	)
	if err := row.Scan(&s.SubscriptionID, &s.UserID, &s.LinkID, &status, &s.CustomerEmail, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = domain.SubscriberStatus(status)
	return &s, nil
}
