package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hoaboard/hoaboard/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Admin, error)
	FindByID(ctx context.Context, id int64) (*Admin, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches an administrator by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Admin, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
SELECT id, email, display_name, password_hash, is_active, created_at, updated_at
FROM admins WHERE email = $1`, email))
}

// FindByID fetches an administrator by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Admin, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
SELECT id, email, display_name, password_hash, is_active, created_at, updated_at
FROM admins WHERE id = $1`, id))
}

func (r *PGRepository) scanOne(row pgx.Row) (*Admin, error) {
	var (
		a                    Admin
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash, &a.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find admin: %w", err)
	}
	if createdAt.Valid {
		a.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		a.UpdatedAt = updatedAt.Time
	}
	return &a, nil
}

var _ Repository = (*PGRepository)(nil)
