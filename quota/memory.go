// Package quota provides an in-memory Store for vidquota.
//
// State lives in the process and is lost on restart. Use quota/postgres,
// quota/redis or quota/gormstore for durable, multi-instance deployments.
package quota

import (
	"context"
	"sync"
	"time"

	"github.com/ineyio/vidquota"
)

// MemoryStore is an in-memory membership and usage store.
type MemoryStore struct {
	mu          sync.Mutex
	memberships map[string]*vidquota.Membership
	usage       map[usageKey]int64
}

type usageKey struct {
	userID string
	day    string
	model  vidquota.Model
}

var _ vidquota.Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		memberships: make(map[string]*vidquota.Membership),
		usage:       make(map[usageKey]int64),
	}
}

// Status returns the membership of userID, creating a non-member record on
// first sight and downgrading it once it has expired.
func (s *MemoryStore) Status(_ context.Context, userID string, now time.Time) (vidquota.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.getOrCreate(userID)
	if m.Expired(now) {
		m.IsMember = false
		m.ExpiresAt = nil
	}
	return copyMembership(m), nil
}

// Activate extends the membership of userID by months.
func (s *MemoryStore) Activate(_ context.Context, userID string, months int, now time.Time) (vidquota.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.getOrCreate(userID)
	exp := vidquota.ExtendExpiry(m.ExpiresAt, now, months)
	m.IsMember = true
	m.ExpiresAt = &exp
	return copyMembership(m), nil
}

// Usage returns the per-model counters of userID for day.
func (s *MemoryStore) Usage(_ context.Context, userID, day string) (map[vidquota.Model]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[vidquota.Model]int64)
	for _, m := range vidquota.SupportedModels {
		if n, ok := s.usage[usageKey{userID: userID, day: day, model: m}]; ok {
			out[m] = n
		}
	}
	return out, nil
}

// Consume increments the counter of (userID, day, model) unless it already
// reached limit.
func (s *MemoryStore) Consume(_ context.Context, userID, day string, model vidquota.Model, limit int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := usageKey{userID: userID, day: day, model: model}
	if s.usage[k] >= limit {
		return s.usage[k], vidquota.ErrQuotaExhausted
	}
	s.usage[k]++
	return s.usage[k], nil
}

func (s *MemoryStore) getOrCreate(userID string) *vidquota.Membership {
	m, ok := s.memberships[userID]
	if !ok {
		m = &vidquota.Membership{UserID: userID}
		s.memberships[userID] = m
	}
	return m
}

func copyMembership(m *vidquota.Membership) vidquota.Membership {
	out := *m
	if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		out.ExpiresAt = &t
	}
	return out
}
