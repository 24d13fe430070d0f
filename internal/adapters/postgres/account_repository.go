package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
)

// AccountRepository implements ports.AccountRepository.
// Balances live in JSONB maps keyed by lowercase currency and are only ever changed by
// single-statement arithmetic so concurrent credits and sweeps cannot lose updates.
type AccountRepository struct {
	executor
}

var _ ports.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a new seller account repository
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{executor{pool: pool}}
}

const accountColumns = `user_id::text, stripe_account_id, country, status, earnings, pending_earnings, created_at, updated_at`

// Get retrieves the seller account for a user
func (r *AccountRepository) Get(ctx context.Context, db ports.DBTX, userID string) (*domain.SellerAccount, error) {
	if !isUUID(userID) {
		return nil, domain.ErrAccountNotFound
	}
	acc, err := scanAccount(r.q(db).QueryRow(ctx,
		`SELECT `+accountColumns+` FROM seller_accounts WHERE user_id = $1`, userID))
	if err != nil {
		return nil, notFoundOr(err, domain.ErrAccountNotFound, "get seller account")
	}
	return acc, nil
}

// GetByStripeAccountID retrieves the seller account owning a connected account
func (r *AccountRepository) GetByStripeAccountID(ctx context.Context, db ports.DBTX, stripeAccountID string) (*domain.SellerAccount, error) {
	acc, err := scanAccount(r.q(db).QueryRow(ctx,
		`SELECT `+accountColumns+` FROM seller_accounts WHERE stripe_account_id = $1`, stripeAccountID))
	if err != nil {
		return nil, notFoundOr(err, domain.ErrAccountNotFound, "get seller account by stripe id")
	}
	return acc, nil
}

// CreateIfAbsent inserts the account unless the user already has one
func (r *AccountRepository) CreateIfAbsent(ctx context.Context, tx ports.DBTX, account *domain.SellerAccount) (bool, error) {
	status := account.Status
	if status == "" {
		status = domain.AccountStatusNew
	}
	tag, err := r.q(tx).Exec(ctx, `
		INSERT INTO seller_accounts (user_id, stripe_account_id, country, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`,
		account.UserID, nullText(account.StripeAccountID), account.Country, string(status))
	if err != nil {
		if isUniqueViolation(err) {
			return false, domain.WrapError(domain.ErrorCodeAlreadyExists, "stripe account already linked", err)
		}
		return false, domain.NewStorageError("create seller account", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetStripeAccount attaches a connected account id and country
func (r *AccountRepository) SetStripeAccount(ctx context.Context, tx ports.DBTX, userID, stripeAccountID, country string) error {
	tag, err := r.q(tx).Exec(ctx, `
		UPDATE seller_accounts
		SET stripe_account_id = $2, country = $3, updated_at = NOW()
		WHERE user_id = $1`,
		userID, stripeAccountID, country)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrorCodeAlreadyExists, "stripe account already linked", err)
		}
		return domain.NewStorageError("set stripe account", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// TransitionStatus moves the status from one value to another in a single
// conditional write, so a stale read cannot move the account backward
func (r *AccountRepository) TransitionStatus(ctx context.Context, tx ports.DBTX, userID string, from, to domain.AccountStatus) (bool, error) {
	tag, err := r.q(tx).Exec(ctx, `
		UPDATE seller_accounts SET status = $3, updated_at = NOW()
		WHERE user_id = $1 AND status = $2`,
		userID, string(from), string(to))
	if err != nil {
		return false, domain.NewStorageError("transition account status", err)
	}
	return tag.RowsAffected() == 1, nil
}

// incrementBalance adds $3 to column[$2]. The column name is never user input.
func incrementBalance(column string) string {
	return `
		UPDATE seller_accounts
		SET ` + column + ` = jsonb_set(
				coalesce(` + column + `, '{}'::jsonb),
				ARRAY[$2::text],
				to_jsonb(coalesce((` + column + `->>$2)::bigint, 0) + $3::bigint)
			),
			updated_at = NOW()
		WHERE user_id = $1`
}

var (
	incrementEarningsSQL        = incrementBalance("earnings")
	incrementPendingEarningsSQL = incrementBalance("pending_earnings")
)

// IncrementEarnings atomically adds amount to earnings[currency]
func (r *AccountRepository) IncrementEarnings(ctx context.Context, tx ports.DBTX, userID, currency string, amount int64) error {
	return r.increment(ctx, tx, incrementEarningsSQL, "increment earnings", userID, currency, amount)
}

// IncrementPendingEarnings atomically adds amount to pending_earnings[currency]
func (r *AccountRepository) IncrementPendingEarnings(ctx context.Context, tx ports.DBTX, userID, currency string, amount int64) error {
	return r.increment(ctx, tx, incrementPendingEarningsSQL, "increment pending earnings", userID, currency, amount)
}

func (r *AccountRepository) increment(ctx context.Context, tx ports.DBTX, sql, op, userID, currency string, amount int64) error {
	tag, err := r.q(tx).Exec(ctx, sql, userID, strings.ToLower(currency), amount)
	if err != nil {
		return domain.NewStorageError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ClaimPendingEarnings removes pending_earnings[currency] and returns what it held.
// The row lock makes a concurrent claim wait and then read the emptied balance.
func (r *AccountRepository) ClaimPendingEarnings(ctx context.Context, tx ports.DBTX, userID, currency string) (int64, error) {
	if !isUUID(userID) {
		return 0, domain.ErrAccountNotFound
	}
	var claimed int64
	err := r.q(tx).QueryRow(ctx, `
		WITH locked AS (
			SELECT user_id, coalesce((pending_earnings->>$2)::bigint, 0) AS amount
			FROM seller_accounts
			WHERE user_id = $1
			FOR UPDATE
		)
		UPDATE seller_accounts a
		SET pending_earnings = coalesce(a.pending_earnings, '{}'::jsonb) - $2::text,
			updated_at = NOW()
		FROM locked
		WHERE a.user_id = locked.user_id
		RETURNING locked.amount`,
		userID, strings.ToLower(currency)).Scan(&claimed)
	if err != nil {
		return 0, notFoundOr(err, domain.ErrAccountNotFound, "claim pending earnings")
	}
	return claimed, nil
}

func scanAccount(row pgx.Row) (*domain.SellerAccount, error) {
	var (
		a       domain.SellerAccount
		stripe  pgtype.Text
		status  string
		earn    map[string]int64
		pending map[string]int64
	)
	if err := row.Scan(&a.UserID, &stripe, &a.Country, &status, &earn, &pending, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.StripeAccountID = textOrEmpty(stripe)
	a.Status = domain.AccountStatus(status)
	a.Earnings = domain.Balances(earn)
	a.PendingEarnings = domain.Balances(pending)
	if a.Earnings == nil {
		a.Earnings = domain.Balances{}
	}
	if a.PendingEarnings == nil {
		a.PendingEarnings = domain.Balances{}
	}
	return &a, nil
}
