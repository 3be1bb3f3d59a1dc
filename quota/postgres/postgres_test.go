//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ineyio/vidquota"
	quotapg "github.com/ineyio/vidquota/quota/postgres"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "postgres://localhost:5432/vidquota_test?sslmode=disable"
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("pgxpool: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		t.Fatalf("postgres not available: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

func newTestStore(t *testing.T, pool *pgxpool.Pool) *quotapg.Store {
	t.Helper()
	// Use a unique prefix per test to avoid collisions.
	prefix := fmt.Sprintf("test_%s_", strings.ToLower(t.Name()))
	s := quotapg.New(pool, quotapg.WithTablePrefix(prefix))

	ctx := context.Background()
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %smemberships, %svideo_usage", prefix, prefix))
	})
	return s
}

func TestStatusCreatesNonMember(t *testing.T) {
	store := newTestStore(t, newTestPool(t))

	m, err := store.Status(context.Background(), "u1", t0)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if m.IsMember || m.ExpiresAt != nil {
		t.Fatalf("expected non-member, got %+v", m)
	}
}

func TestActivateExtendsAndExpires(t *testing.T) {
	store := newTestStore(t, newTestPool(t))
	ctx := context.Background()

	m, err := store.Activate(ctx, "u1", 1, t0)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !m.IsMember || m.ExpiresAt == nil || !m.ExpiresAt.Equal(t0.Add(30*24*time.Hour)) {
		t.Fatalf("unexpected membership after activate: %+v", m)
	}

	m, err = store.Activate(ctx, "u1", 2, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("activate again: %v", err)
	}
	if want := t0.Add(90 * 24 * time.Hour); !m.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %s, got %s", want, m.ExpiresAt)
	}

	m, err = store.Status(ctx, "u1", t0.Add(90*24*time.Hour))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if m.IsMember || m.ExpiresAt != nil {
		t.Fatalf("expected expired membership, got %+v", m)
	}
}

func TestActivateClampsMonths(t *testing.T) {
	store := newTestStore(t, newTestPool(t))

	m, err := store.Activate(context.Background(), "u1", 99, t0)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if want := t0.Add(24 * 30 * 24 * time.Hour); !m.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %s, got %s", want, m.ExpiresAt)
	}
}

func TestConsumeStopsAtLimit(t *testing.T) {
	store := newTestStore(t, newTestPool(t))
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := store.Consume(ctx, "u1", "2026-03-01", vidquota.ModelSeedance18, 3)
		if err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
		if n != i {
			t.Fatalf("expected count %d, got %d", i, n)
		}
	}

	if _, err := store.Consume(ctx, "u1", "2026-03-01", vidquota.ModelSeedance18, 3); err != vidquota.ErrQuotaExhausted {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}

	usage, err := store.Usage(ctx, "u1", "2026-03-01")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage[vidquota.ModelSeedance18] != 3 || len(usage) != 1 {
		t.Fatalf("unexpected usage: %v", usage)
	}
}

func TestConcurrentConsume(t *testing.T) {
	store := newTestStore(t, newTestPool(t))
	ctx := context.Background()

	var ok atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, "u1", "2026-03-01", vidquota.ModelSeedance20, 10); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 10 {
		t.Fatalf("expected 10 successful consumes, got %d", ok.Load())
	}
}
