package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
)

// pgUniqueViolation is the SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// executor picks the caller's transaction when given one and the pool otherwise
type executor struct {
	pool *pgxpool.Pool
}

func (e executor) q(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return e.pool
}

// nullText creates a pgtype.Text with empty string handling
func nullText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// textOrEmpty unwraps a nullable text column
func textOrEmpty(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

// isUUID reports whether s can be bound to a UUID column
func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// notFoundOr maps pgx.ErrNoRows to notFound and wraps everything else as a storage error
func notFoundOr(err error, notFound error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	return domain.NewStorageError(op, err)
}

// linkTable returns the table holding links of kind
func linkTable(kind domain.LinkKind) (string, error) {
	switch kind {
	case domain.LinkKindPayment:
		return "payment_links", nil
	case domain.LinkKindSubscription:
		return "subscription_links", nil
	}
	return "", domain.NewValidationError(fmt.Sprintf("unknown link kind %q", kind))
}

// nullTime maps the zero time to NULL so column defaults apply
func nullTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
