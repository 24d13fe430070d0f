package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kevin07696/payme-service/internal/domain"
	"github.com/kevin07696/payme-service/internal/domain/ports"
)

// UserRepository implements ports.UserRepository
type UserRepository struct {
	executor
}

var _ ports.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a new user repository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{executor{pool: pool}}
}

const getUserByIdentity = `
SELECT u.id::text, u.email, u.created_at
FROM user_identities i
JOIN users u ON u.id = i.user_id
WHERE i.provider = $1 AND i.subject = $2`

// EnsureUser returns the user behind (provider, subject), inserting user and identity on first sight.
// Callers should pass a transaction so both rows land together.
func (r *UserRepository) EnsureUser(ctx context.Context, tx ports.DBTX, provider, subject, email string) (*domain.User, bool, error) {
	q := r.q(tx)

	user, err := scanUser(q.QueryRow(ctx, getUserByIdentity, provider, subject))
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, domain.NewStorageError("get user by identity", err)
	}

	id := uuid.New().String()
	user, err = scanUser(q.QueryRow(ctx,
		`INSERT INTO users (id, email) VALUES ($1, $2) RETURNING id::text, email, created_at`,
		id, email))
	if err != nil {
		return nil, false, domain.NewStorageError("insert user", err)
	}

	tag, err := q.Exec(ctx, `
		INSERT INTO user_identities (provider, subject, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, subject) DO NOTHING`,
		provider, subject, id)
	if err != nil {
		return nil, false, domain.NewStorageError("insert user identity", err)
	}
	if tag.RowsAffected() == 0 {
		// Lost a first-login race; the winner's user is the real one
		winner, err := scanUser(q.QueryRow(ctx, getUserByIdentity, provider, subject))
		if err != nil {
			return nil, false, domain.NewStorageError("get user by identity", err)
		}
		return winner, false, nil
	}

	return user, true, nil
}

// GetByID retrieves a user
func (r *UserRepository) GetByID(ctx context.Context, db ports.DBTX, userID string) (*domain.User, error) {
	if !isUUID(userID) {
		return nil, domain.ErrUserNotFound
	}
	user, err := scanUser(r.q(db).QueryRow(ctx,
		`SELECT id::text, email, created_at FROM users WHERE id = $1`, userID))
	if err != nil {
		return nil, notFoundOr(err, domain.ErrUserNotFound, "get user")
	}
	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
