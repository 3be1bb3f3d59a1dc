// Package gormstore provides a GORM-backed Store for vidquota.
//
// OpenSQLite wires the single-node SQLite deployment; pass a postgres
// *gorm.DB to New for shared storage. Other dialects are rejected by
// EnsureSchema because their upserts cannot carry the limit condition.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ineyio/vidquota"
)

type membershipRow struct {
	UserID    string `gorm:"primaryKey;size:128"`
	IsMember  bool   `gorm:"not null"`
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type usageRow struct {
	UserID    string `gorm:"primaryKey;size:128"`
	UsageDate string `gorm:"primaryKey;size:10"`
	Model     string `gorm:"primaryKey;size:16"`
	UsedCount int64  `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrUnsupportedDialect is returned by EnsureSchema for dialects other than
// sqlite and postgres.
var ErrUnsupportedDialect = errors.New("vidquota/gorm: unsupported dialect")

// Store is a GORM-backed vidquota.Store.
type Store struct {
	db          *gorm.DB
	tablePrefix string
	clock       vidquota.Clock
}

var _ vidquota.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default none).
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// WithClock sets the clock used to stamp usage rows (default system time).
func WithClock(c vidquota.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New creates a Store on db.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = vidquota.SystemClock{}
	}
	return s
}

// OpenSQLite opens a SQLite database at path with a single connection, so
// transactions on the file are serialized.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("vidquota/gorm: open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("vidquota/gorm: sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func (s *Store) membershipsTable() string { return s.tablePrefix + "memberships" }
func (s *Store) usageTable() string       { return s.tablePrefix + "video_usage" }

// EnsureSchema creates or migrates the required tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	switch name := s.db.Dialector.Name(); name {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDialect, name)
	}

	db := s.db.WithContext(ctx)
	if err := db.Table(s.membershipsTable()).AutoMigrate(&membershipRow{}); err != nil {
		return fmt.Errorf("vidquota/gorm: migrate memberships: %w", err)
	}
	if err := db.Table(s.usageTable()).AutoMigrate(&usageRow{}); err != nil {
		return fmt.Errorf("vidquota/gorm: migrate usage: %w", err)
	}
	return nil
}

// Status returns the membership of userID, creating a non-member row on
// first sight and flipping an expired membership to non-member.
func (s *Store) Status(ctx context.Context, userID string, now time.Time) (vidquota.Membership, error) {
	var row membershipRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockMembership(tx, userID, now, &row); err != nil {
			return err
		}

		m := toMembership(row)
		if !m.Expired(now) {
			return nil
		}

		row.IsMember = false
		row.ExpiresAt = nil
		return tx.Table(s.membershipsTable()).
			Where("user_id = ?", userID).
			Updates(map[string]any{"is_member": false, "expires_at": nil, "updated_at": now}).Error
	})
	if err != nil {
		return vidquota.Membership{}, fmt.Errorf("vidquota/gorm: status: %w", err)
	}
	return toMembership(row), nil
}

// Activate extends the membership of userID by months.
func (s *Store) Activate(ctx context.Context, userID string, months int, now time.Time) (vidquota.Membership, error) {
	var row membershipRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockMembership(tx, userID, now, &row); err != nil {
			return err
		}

		exp := vidquota.ExtendExpiry(row.ExpiresAt, now, months)
		row.IsMember = true
		row.ExpiresAt = &exp
		return tx.Table(s.membershipsTable()).
			Where("user_id = ?", userID).
			Updates(map[string]any{"is_member": true, "expires_at": exp, "updated_at": now}).Error
	})
	if err != nil {
		return vidquota.Membership{}, fmt.Errorf("vidquota/gorm: activate: %w", err)
	}
	return toMembership(row), nil
}

// Usage returns the per-model counters of userID for day.
func (s *Store) Usage(ctx context.Context, userID, day string) (map[vidquota.Model]int64, error) {
	var rows []usageRow
	err := s.db.WithContext(ctx).Table(s.usageTable()).
		Where("user_id = ? AND usage_date = ?", userID, day).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("vidquota/gorm: usage: %w", err)
	}

	out := make(map[vidquota.Model]int64, len(rows))
	for _, r := range rows {
		out[vidquota.Model(r.Model)] = r.UsedCount
	}
	return out, nil
}

// Consume increments the counter of (userID, day, model) while it is below
// limit. The upsert only updates rows that pass the limit condition, so an
// exhausted counter shows up as zero affected rows.
func (s *Store) Consume(ctx context.Context, userID, day string, model vidquota.Model, limit int64) (int64, error) {
	if limit < 1 {
		return 0, vidquota.ErrQuotaExhausted
	}

	table := s.usageTable()
	now := s.clock.Now()
	var n int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Table(table).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "usage_date"}, {Name: "model"}},
			DoUpdates: clause.Assignments(map[string]any{
				"used_count": gorm.Expr(table + ".used_count + 1"),
				"updated_at": now,
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr(table+".used_count < ?", limit),
			}},
		}).Create(&usageRow{
			UserID:    userID,
			UsageDate: day,
			Model:     string(model),
			UsedCount: 1,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return vidquota.ErrQuotaExhausted
		}

		var row usageRow
		if err := tx.Table(table).
			Where("user_id = ? AND usage_date = ? AND model = ?", userID, day, string(model)).
			Take(&row).Error; err != nil {
			return err
		}
		n = row.UsedCount
		return nil
	})
	if errors.Is(err, vidquota.ErrQuotaExhausted) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("vidquota/gorm: consume: %w", err)
	}
	return n, nil
}

func (s *Store) lockMembership(tx *gorm.DB, userID string, now time.Time, row *membershipRow) error {
	table := s.membershipsTable()
	if err := tx.Table(table).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&membershipRow{UserID: userID, CreatedAt: now, UpdatedAt: now}).Error; err != nil {
		return err
	}
	return tx.Table(table).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Take(row).Error
}

func toMembership(r membershipRow) vidquota.Membership {
	m := vidquota.Membership{UserID: r.UserID, IsMember: r.IsMember}
	if r.ExpiresAt != nil {
		t := r.ExpiresAt.UTC()
		m.ExpiresAt = &t
	}
	return m
}
