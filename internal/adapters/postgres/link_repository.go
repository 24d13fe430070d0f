package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
)

// LinkRepository implements ports.LinkRepository over payment_links and subscription_links.
// Both tables share a column layout; subscription_links adds interval.
type LinkRepository struct {
	executor
}

var _ ports.LinkRepository = (*LinkRepository)(nil)

// NewLinkRepository creates a new link repository
func NewLinkRepository(pool *pgxpool.Pool) *LinkRepository {
	return &LinkRepository{executor{pool: pool}}
}

func linkColumns(kind domain.LinkKind) string {
	interval := `''`
	if kind == domain.LinkKindSubscription {
		interval = `interval`
	}
	return `link_id::text, user_id::text, title, description, base_amount, total_amount, service_fee,
		currency, require_fields, status, expires_at, on_platform, stripe_payment_link_id, url,
		total_amount_paid, earnings_amount, created_at, updated_at, ` + interval
}

// CreateDraft inserts a link before the processor call
func (r *LinkRepository) CreateDraft(ctx context.Context, tx ports.DBTX, link *domain.Link) error {
	table, err := linkTable(link.Kind)
	if err != nil {
		return err
	}

	requireFields := link.RequireFields
	if requireFields == nil {
		requireFields = []string{}
	}
	args := []any{
		link.LinkID, link.UserID, link.Title, link.Description, link.BaseAmount, link.TotalAmount,
		link.ServiceFee, link.Currency, requireFields, string(link.Status), link.ExpiresAt, link.OnPlatform,
	}

	sql := `INSERT INTO ` + table + ` (link_id, user_id, title, description, base_amount, total_amount,
		service_fee, currency, require_fields, status, expires_at, on_platform`
	if link.Kind == domain.LinkKindSubscription {
		sql += `, interval) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
		args = append(args, string(link.Interval))
	} else {
		sql += `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	}
	sql += ` RETURNING created_at, updated_at`

	if err := r.q(tx).QueryRow(ctx, sql, args...).Scan(&link.CreatedAt, &link.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrorCodeAlreadyExists, "link already exists", err)
		}
		return domain.NewStorageError("create link draft", err)
	}
	return nil
}

// Get retrieves a link by id
func (r *LinkRepository) Get(ctx context.Context, db ports.DBTX, kind domain.LinkKind, linkID string) (*domain.Link, error) {
	table, err := linkTable(kind)
	if err != nil {
		return nil, err
	}
	if !isUUID(linkID) {
		return nil, domain.ErrLinkNotFound
	}

	link, err := scanLink(kind, r.q(db).QueryRow(ctx,
		`SELECT `+linkColumns(kind)+` FROM `+table+` WHERE link_id = $1`, linkID))
	if err != nil {
		return nil, notFoundOr(err, domain.ErrLinkNotFound, "get link")
	}
	return link, nil
}

// GetByProcessorLinkID retrieves a link by the processor's payment link id
func (r *LinkRepository) GetByProcessorLinkID(ctx context.Context, db ports.DBTX, kind domain.LinkKind, processorLinkID string) (*domain.Link, error) {
	table, err := linkTable(kind)
	if err != nil {
		return nil, err
	}

	link, err := scanLink(kind, r.q(db).QueryRow(ctx,
		`SELECT `+linkColumns(kind)+` FROM `+table+` WHERE stripe_payment_link_id = $1 LIMIT 1`, processorLinkID))
	if err != nil {
		return nil, notFoundOr(err, domain.ErrLinkNotFound, "get link by processor id")
	}
	return link, nil
}

// CompleteDraft stores the processor link id, url and final fee details
func (r *LinkRepository) CompleteDraft(ctx context.Context, tx ports.DBTX, kind domain.LinkKind, linkID, processorLinkID, url string, serviceFee int64, onPlatform bool) error {
	table, err := linkTable(kind)
	if err != nil {
		return err
	}

	tag, err := r.q(tx).Exec(ctx, `
		UPDATE `+table+`
		SET stripe_payment_link_id = $2, url = $3, service_fee = $4, on_platform = $5, updated_at = NOW()
		WHERE link_id = $1`,
		linkID, processorLinkID, url, serviceFee, onPlatform)
	if err != nil {
		return domain.NewStorageError("complete link draft", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLinkNotFound
	}
	return nil
}

// UpdateStatus sets the lifecycle status
func (r *LinkRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, kind domain.LinkKind, linkID string, status domain.LinkStatus) error {
	table, err := linkTable(kind)
	if err != nil {
		return err
	}

	tag, err := r.q(tx).Exec(ctx,
		`UPDATE `+table+` SET status = $2, updated_at = NOW() WHERE link_id = $1`,
		linkID, string(status))
	if err != nil {
		return domain.NewStorageError("update link status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLinkNotFound
	}
	return nil
}

// IncrementTotals atomically adds to earnings_amount and total_amount_paid
func (r *LinkRepository) IncrementTotals(ctx context.Context, tx ports.DBTX, kind domain.LinkKind, linkID string, earnings, amountPaid int64) error {
	table, err := linkTable(kind)
	if err != nil {
		return err
	}
	if !isUUID(linkID) {
		return domain.ErrLinkNotFound
	}

	tag, err := r.q(tx).Exec(ctx, `
		UPDATE `+table+`
		SET earnings_amount = earnings_amount + $2,
			total_amount_paid = total_amount_paid + $3,
			updated_at = NOW()
		WHERE link_id = $1`,
		linkID, earnings, amountPaid)
	if err != nil {
		return domain.NewStorageError("increment link totals", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLinkNotFound
	}
	return nil
}

// ListByUser lists a user's links, newest first
func (r *LinkRepository) ListByUser(ctx context.Context, db ports.DBTX, kind domain.LinkKind, userID string) ([]*domain.Link, error) {
	table, err := linkTable(kind)
	if err != nil {
		return nil, err
	}

	rows, err := r.q(db).Query(ctx,
		`SELECT `+linkColumns(kind)+` FROM `+table+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, domain.NewStorageError("list links", err)
	}
	return collectLinks(kind, rows)
}

// ListExpired lists ACTIVE links whose expires_at is at or before now
func (r *LinkRepository) ListExpired(ctx context.Context, db ports.DBTX, kind domain.LinkKind, now time.Time, limit int32) ([]*domain.Link, error) {
	table, err := linkTable(kind)
	if err != nil {
		return nil, err
	}

	rows, err := r.q(db).Query(ctx, `
		SELECT `+linkColumns(kind)+` FROM `+table+`
		WHERE status = 'ACTIVE' AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, domain.NewStorageError("list expired links", err)
	}
	return collectLinks(kind, rows)
}

func collectLinks(kind domain.LinkKind, rows pgx.Rows) ([]*domain.Link, error) {
	defer rows.Close()

	var links []*domain.Link
	for rows.Next() {
		link, err := scanLink(kind, rows)
		if err != nil {
			return nil, domain.NewStorageError("scan link", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate links", err)
	}
	return links, nil
}

func scanLink(kind domain.LinkKind, row pgx.Row) (*domain.Link, error) {
	var (
		l         domain.Link
		status    string
		interval  string
		expiresAt pgtype.Timestamptz
		stripeID  pgtype.Text
		url       pgtype.Text
	)
	err := row.Scan(&l.LinkID, &l.UserID, &l.Title, &l.Description, &l.BaseAmount, &l.TotalAmount, &l.ServiceFee,
		&l.Currency, &l.RequireFields, &status, &expiresAt, &l.OnPlatform, &stripeID, &url,
		&l.TotalAmountPaid, &l.EarningsAmount, &l.CreatedAt, &l.UpdatedAt, &interval)
	if err != nil {
		return nil, err
	}

	l.Kind = kind
	l.Status = domain.LinkStatus(status)
	l.Interval = domain.BillingInterval(interval)
	l.ProcessorLinkID = textOrEmpty(stripeID)
	l.URL = textOrEmpty(url)
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		l.ExpiresAt = &t
	}
	return &l, nil
}
