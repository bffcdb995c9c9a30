package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hoaboard/hoaboard/internal/shared"
)

// Store is the period document store. Documents are last-write-wins: a
// WritePeriod replaces the whole document without any version check, so two
// concurrent committers can silently overwrite each other. That property is
// inherited and intentional.
type Store interface {
	// ReadPeriod returns the document for a period, or shared.ErrNotFound
	// when the period has never been written.
	ReadPeriod(ctx context.Context, period string) (*Document, error)
	// WritePeriod replaces the period document and publishes a change
	// notification.
	WritePeriod(ctx context.Context, doc *Document) error
	// WriteSummary updates only the denormalized totals columns.
	WriteSummary(ctx context.Context, period string, totals Totals) error
	// ListPeriods returns known period keys, newest first.
	ListPeriods(ctx context.Context) ([]string, error)
	// Subscribe blocks delivering change notifications for a period until
	// ctx is done.
	Subscribe(ctx context.Context, period string, onChange func(period string)) error
}

// PGStore persists period documents as JSONB rows and publishes change
// notifications over redis pub/sub.
type PGStore struct {
	pool   *pgxpool.Pool
	rdb    *redis.Client
	logger *slog.Logger
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) *PGStore {
	return &PGStore{pool: pool, rdb: rdb, logger: logger}
}

// ReadPeriod fetches and normalizes the document for a period.
func (s *PGStore) ReadPeriod(ctx context.Context, period string) (*Document, error) {
	var (
		raw       []byte
		dues, fee float64
		updatedAt pgtype.Timestamptz
	)
	err := s.pool.QueryRow(ctx,
		`SELECT doc, total_dues_paid, total_fee_paid, updated_at FROM dues_periods WHERE period = $1`,
		period,
	).Scan(&raw, &dues, &fee, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("ledger: read period %s: %w", period, err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("ledger: decode period %s: %w", period, err)
	}
	doc.Period = period
	doc.TotalDuesPaid = dues
	doc.TotalFeePaid = fee
	if updatedAt.Valid {
		doc.UpdatedAt = updatedAt.Time
	}
	doc.Normalize()
	return &doc, nil
}

// WritePeriod upserts the whole document. Last write wins.
func (s *PGStore) WritePeriod(ctx context.Context, doc *Document) error {
	if doc == nil {
		return errors.New("ledger: nil document")
	}
	doc.UpdatedAt = time.Now().UTC()
	totals := doc.Record.ComputeTotals()
	doc.TotalDuesPaid = totals.TotalDuesPaid
	doc.TotalFeePaid = totals.TotalFeePaid

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("ledger: encode period %s: %w", doc.Period, err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO dues_periods (period, doc, total_dues_paid, total_fee_paid, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (period) DO UPDATE
SET doc = EXCLUDED.doc,
    total_dues_paid = EXCLUDED.total_dues_paid,
    total_fee_paid = EXCLUDED.total_fee_paid,
    updated_at = EXCLUDED.updated_at`,
		doc.Period, raw, doc.TotalDuesPaid, doc.TotalFeePaid, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ledger: write period %s: %w", doc.Period, err)
	}
	s.publish(ctx, doc.Period)
	return nil
}

// WriteSummary updates the denormalized totals without touching the document.
func (s *PGStore) WriteSummary(ctx context.Context, period string, totals Totals) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dues_periods SET total_dues_paid = $2, total_fee_paid = $3, updated_at = NOW() WHERE period = $1`,
		period, totals.TotalDuesPaid, totals.TotalFeePaid)
	if err != nil {
		return fmt.Errorf("ledger: write summary %s: %w", period, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListPeriods returns known period keys, newest first.
func (s *PGStore) ListPeriods(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT period FROM dues_periods ORDER BY period DESC`)
	if err != nil {
		return nil, fmt.Errorf("ledger: list periods: %w", err)
	}
	defer rows.Close()

	var periods []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// Subscribe listens on the period's redis channel, invoking onChange per
// message, until ctx is cancelled.
func (s *PGStore) Subscribe(ctx context.Context, period string, onChange func(period string)) error {
	sub := s.rdb.Subscribe(ctx, changeChannel(period))
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			onChange(msg.Payload)
		}
	}
}

func (s *PGStore) publish(ctx context.Context, period string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Publish(ctx, changeChannel(period), period).Err(); err != nil && s.logger != nil {
		s.logger.Warn("publish period change", slog.String("period", period), slog.Any("error", err))
	}
}

func changeChannel(period string) string {
	return "dues:changed:" + period
}

var _ Store = (*PGStore)(nil)
