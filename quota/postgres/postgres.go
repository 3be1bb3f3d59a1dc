// Package postgres provides a PostgreSQL-backed Store for vidquota.
//
// Memberships and daily usage counters live in two tables. Every write is a
// single conditional statement or a short transaction, which makes the store
// safe for multi-instance deployments.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ineyio/vidquota"
)

// Store is a PostgreSQL-backed vidquota.Store.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var _ vidquota.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "vidquota_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a new PostgreSQL-backed Store.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "vidquota_",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) membershipsTable() string { return s.tablePrefix + "memberships" }
func (s *Store) usageTable() string       { return s.tablePrefix + "video_usage" }

// EnsureSchema creates the required tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT PRIMARY KEY,
			is_member BOOLEAN NOT NULL DEFAULT false,
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT NOT NULL,
			usage_date TEXT NOT NULL,
			model TEXT NOT NULL,
			used_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, usage_date, model)
		);
	`, s.membershipsTable(), s.usageTable())
	_, err := s.pool.Exec(ctx, q)
	if err != nil {
		return fmt.Errorf("vidquota/postgres: ensure schema: %w", err)
	}
	return nil
}

// Status returns the membership of userID, inserting a non-member row on
// first sight and flipping an expired membership to non-member.
func (s *Store) Status(ctx context.Context, userID string, now time.Time) (vidquota.Membership, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return vidquota.Membership{}, fmt.Errorf("vidquota/postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (user_id, is_member) VALUES ($1, false) ON CONFLICT (user_id) DO NOTHING`,
			s.membershipsTable()),
		userID,
	)
	if err != nil {
		return vidquota.Membership{}, fmt.Errorf("vidquota/postgres: ensure membership: %w", err)
	}

	// Lazy expiry.
	_, err = tx.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET is_member = false, expires_at = NULL, updated_at = $2
			WHERE user_id = $1 AND is_member AND expires_at IS NOT NULL AND expires_at <= $2`,
			s.membershipsTable()),
		userID, now,
	)
	if err != nil {
		return vidquota.Membership{}, fmt.Errorf("vidquota/postgres: expire membership: %w", err)
	}

	m, err := scanMembership(tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT user_id, is_member, expires_at FROM %s WHERE user_id = $1`, s.membershipsTable()),
		userID,
	))
	if err != nil {
		return vidquota.Membership{}, fmt.Errorf("vidquota/postgres: read membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return vidquota.Membership{}, fmt.Errorf("vidquota/postgres: commit: %w", err)
	}
	return m, nil
}

// Activate extends the membership of userID by months in a single upsert.
func (s *Store) Activate(ctx context.Context, userID string, months int, now time.Time) (vidquota.Membership, error) {
	days := vidquota.ClampMonths(months) * vidquota.MembershipDays

	m, err := scanMembership(s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %[1]s AS t (user_id, is_member, expires_at, updated_at)
			VALUES ($1, true, $2::timestamptz + make_interval(days => $3), $2)
			ON CONFLICT (user_id) DO UPDATE SET
				is_member = true,
				expires_at = GREATEST($2::timestamptz, COALESCE(t.expires_at, $2::timestamptz)) + make_interval(days => $3),
				updated_at = $2
			RETURNING user_id, is_member, expires_at`, s.membershipsTable()),
		userID, now, days,
	))
	if err != nil {
		return vidquota.Membership{}, fmt.Errorf("vidquota/postgres: activate: %w", err)
	}
	return m, nil
}

// Usage returns the per-model counters of userID for day.
func (s *Store) Usage(ctx context.Context, userID, day string) (map[vidquota.Model]int64, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT model, used_count FROM %s WHERE user_id = $1 AND usage_date = $2`, s.usageTable()),
		userID, day,
	)
	if err != nil {
		return nil, fmt.Errorf("vidquota/postgres: usage: %w", err)
	}
	defer rows.Close()

	out := make(map[vidquota.Model]int64)
	for rows.Next() {
		var model string
		var n int64
		if err := rows.Scan(&model, &n); err != nil {
			return nil, fmt.Errorf("vidquota/postgres: scan usage: %w", err)
		}
		out[vidquota.Model(model)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vidquota/postgres: usage rows: %w", err)
	}
	return out, nil
}

// Consume increments the counter of (userID, day, model) while it is below
// limit. The conflict update's WHERE clause makes the check and the write a
// single statement.
func (s *Store) Consume(ctx context.Context, userID, day string, model vidquota.Model, limit int64) (int64, error) {
	if limit < 1 {
		return 0, vidquota.ErrQuotaExhausted
	}

	var n int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s AS t (user_id, usage_date, model, used_count)
			VALUES ($1, $2, $3, 1)
			ON CONFLICT (user_id, usage_date, model) DO UPDATE SET
				used_count = t.used_count + 1,
				updated_at = now()
			WHERE t.used_count < $4
			RETURNING used_count`, s.usageTable()),
		userID, day, string(model), limit,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, vidquota.ErrQuotaExhausted
	}
	if err != nil {
		return 0, fmt.Errorf("vidquota/postgres: consume: %w", err)
	}
	return n, nil
}

func scanMembership(row pgx.Row) (vidquota.Membership, error) {
	var m vidquota.Membership
	var exp *time.Time
	if err := row.Scan(&m.UserID, &m.IsMember, &exp); err != nil {
		return vidquota.Membership{}, err
	}
	if exp != nil {
		t := exp.UTC()
		m.ExpiresAt = &t
	}
	return m, nil
}
