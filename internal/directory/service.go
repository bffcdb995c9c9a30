// Package directory lists subdivision residents eligible to appear on the
// dues ledger. Only the add-member flow consumes it; the edit session never
// touches the directory.
package directory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hoaboard/hoaboard/internal/shared"
)

// Service reads the resident directory.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs a Service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// ListEligibleMembers returns resident names not yet present in the given
// period's ledger document, sorted by name.
func (s *Service) ListEligibleMembers(ctx context.Context, period string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
SELECT r.full_name
FROM residents r
WHERE r.is_active
  AND NOT EXISTS (
    SELECT 1 FROM dues_periods p
    WHERE p.period = $1 AND p.doc->'record' ? r.full_name
  )
ORDER BY r.full_name`, period)
	if err != nil {
		return nil, fmt.Errorf("directory: list eligible: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// RegisterResident adds a resident to the directory.
func (s *Service) RegisterResident(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO residents (full_name, is_active) VALUES ($1, TRUE)`, name)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.ConstraintName == "uq_residents_full_name" {
			return fmt.Errorf("%w: resident %s", shared.ErrDuplicateMember, name)
		}
		return fmt.Errorf("directory: register resident: %w", err)
	}
	return nil
}
