package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the append-only audit trail.
type Store interface {
	// AppendBatch inserts the entries, returning how many made it in. A
	// short count with a non-nil error means the trail is incomplete for
	// this batch; already-appended entries are never removed.
	AppendBatch(ctx context.Context, entries []Entry) (int, error)
	// Timeline lists a page of entries for a period, newest first.
	Timeline(ctx context.Context, period string, limit, offset int) ([]Entry, error)
	// CountForPeriod reports how many entries a period has accrued.
	CountForPeriod(ctx context.Context, period string) (int, error)
	// DeleteOlderThan trims entries recorded before cutoff, returning the
	// number removed. Used only by the retention sweep.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// AppendBatch inserts entries one statement at a time so a mid-batch failure
// leaves the earlier entries in place and reports an exact count.
func (s *PGStore) AppendBatch(ctx context.Context, entries []Entry) (int, error) {
	for i, e := range entries {
		if e.Admin == "" || e.Member == "" || e.Slot == "" {
			return i, errors.New("audit: entry requires admin/member/slot")
		}
		at := e.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		_, err := s.pool.Exec(ctx, `
INSERT INTO dues_audit (batch_id, admin_name, member_name, slot, status, period, at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.BatchID, e.Admin, e.Member, e.Slot, string(e.Status), e.Period, at)
		if err != nil {
			return i, fmt.Errorf("audit: append entry %d: %w", i, err)
		}
	}
	return len(entries), nil
}

// Timeline lists a page of entries for a period, newest first.
func (s *PGStore) Timeline(ctx context.Context, period string, limit, offset int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, batch_id, admin_name, member_name, slot, status, period, at
FROM dues_audit WHERE period = $1 ORDER BY at DESC, id DESC LIMIT $2 OFFSET $3`,
		period, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline %s: %w", period, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			status string
			batch  uuid.UUID
		)
		if err := rows.Scan(&e.ID, &batch, &e.Admin, &e.Member, &e.Slot, &status, &e.Period, &e.At); err != nil {
			return nil, err
		}
		e.BatchID = batch
		e.Status = Status(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountForPeriod reports how many entries a period has accrued.
func (s *PGStore) CountForPeriod(ctx context.Context, period string) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dues_audit WHERE period = $1`, period).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("audit: count %s: %w", period, err)
	}
	return total, nil
}

// DeleteOlderThan trims entries recorded before cutoff.
func (s *PGStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dues_audit WHERE at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: retention sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Store = (*PGStore)(nil)
