package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
)

// TransactionRepository implements ports.TransactionRepository
type TransactionRepository struct {
	executor
}

var _ ports.TransactionRepository = (*TransactionRepository)(nil)

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{executor{pool: pool}}
}

const transactionColumns = `user_id::text, date_transaction_id, external_payment_id, link_id, link_kind, amount,
	currency, status, refunded, refund_status, customer_email, customer_name, customer_phone,
	customer_address, stripe_account_id, created_at`

// Get retrieves a transaction by its external payment id
func (r *TransactionRepository) Get(ctx context.Context, db ports.DBTX, userID, externalPaymentID string) (*domain.Transaction, error) {
	if !isUUID(userID) {
		return nil, domain.ErrTransactionNotFound
	}
	txn, err := scanTransaction(r.q(db).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 AND external_payment_id = $2`,
		userID, externalPaymentID))
	if err != nil {
		return nil, notFoundOr(err, domain.ErrTransactionNotFound, "get transaction")
	}
	return txn, nil
}

// InsertIfAbsent inserts the row unless (user_id, external_payment_id) exists.
// This is the idempotency gate for webhook redelivery: exactly one concurrent caller gets inserted=true.
func (r *TransactionRepository) InsertIfAbsent(ctx context.Context, tx ports.DBTX, txn *domain.Transaction) (bool, error) {
	tag, err := r.q(tx).Exec(ctx, `
		INSERT INTO transactions (
			user_id, date_transaction_id, external_payment_id, link_id, link_kind, amount,
			currency, status, refunded, refund_status, customer_email, customer_name,
			customer_phone, customer_address, stripe_account_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (user_id, external_payment_id) DO NOTHING`,
		txn.UserID, txn.SortKey, txn.ExternalPaymentID, txn.LinkID, string(txn.LinkKind), txn.Amount,
		txn.Currency, string(txn.Status), txn.Refunded, txn.RefundStatus, txn.CustomerEmail, txn.CustomerName,
		txn.CustomerPhone, txn.CustomerAddress, txn.StripeAccountID, txn.CreatedAt,
	)
	if err != nil {
		return false, domain.NewStorageError("insert transaction", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PromoteFailed turns a failed attempt into the succeeded one. The status guard makes
// a concurrent promotion wait on the row lock and then match nothing.
func (r *TransactionRepository) PromoteFailed(ctx context.Context, tx ports.DBTX, txn *domain.Transaction) (bool, error) {
	tag, err := r.q(tx).Exec(ctx, `
		UPDATE transactions
		SET date_transaction_id = $3, link_id = $4, link_kind = $5, amount = $6, currency = $7,
			status = $8, customer_email = $9, customer_name = $10, customer_phone = $11,
			customer_address = $12, stripe_account_id = $13, created_at = $14
		WHERE user_id = $1 AND external_payment_id = $2 AND status = $15`,
		txn.UserID, txn.ExternalPaymentID, txn.SortKey, txn.LinkID, string(txn.LinkKind), txn.Amount, txn.Currency,
		string(txn.Status), txn.CustomerEmail, txn.CustomerName, txn.CustomerPhone,
		txn.CustomerAddress, txn.StripeAccountID, txn.CreatedAt, string(domain.TransactionStatusFailed),
	)
	if err != nil {
		return false, domain.NewStorageError("promote failed transaction", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListRecent lists the newest transactions by sort key
func (r *TransactionRepository) ListRecent(ctx context.Context, db ports.DBTX, userID string, limit int32) ([]*domain.Transaction, error) {
	rows, err := r.q(db).Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = $1
		ORDER BY date_transaction_id DESC
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, domain.NewStorageError("list recent transactions", err)
	}
	return collectTransactions(rows)
}

// ListRange lists transactions whose sort key falls within [from, to], newest first
func (r *TransactionRepository) ListRange(ctx context.Context, db ports.DBTX, userID, from, to string) ([]*domain.Transaction, error) {
	rows, err := r.q(db).Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = $1 AND date_transaction_id BETWEEN $2 AND $3
		ORDER BY date_transaction_id DESC`,
		userID, from, to)
	if err != nil {
		return nil, domain.NewStorageError("list transactions by range", err)
	}
	return collectTransactions(rows)
}

// MarkRefunded flags a transaction as refunded
func (r *TransactionRepository) MarkRefunded(ctx context.Context, tx ports.DBTX, userID, externalPaymentID, refundStatus string) error {
	tag, err := r.q(tx).Exec(ctx, `
		UPDATE transactions SET refunded = TRUE, refund_status = $3
		WHERE user_id = $1 AND external_payment_id = $2`,
		userID, externalPaymentID, refundStatus)
	if err != nil {
		return domain.NewStorageError("mark transaction refunded", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

func collectTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, domain.NewStorageError("scan transaction", err)
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate transactions", err)
	}
	return out, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t      domain.Transaction
		kind   string
		status string
	)
	err := row.Scan(&t.UserID, &t.SortKey, &t.ExternalPaymentID, &t.LinkID, &kind, &t.Amount,
		&t.Currency, &status, &t.Refunded, &t.RefundStatus, &t.CustomerEmail, &t.CustomerName, &t.CustomerPhone,
		&t.CustomerAddress, &t.StripeAccountID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.LinkKind = domain.LinkKind(kind)
	t.Status = domain.TransactionStatus(status)
	return &t, nil
}
