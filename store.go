package vidquota

import (
	"context"
	"time"
)

// MembershipDays is the length of one paid membership month.
const MembershipDays = 30

// Membership month bounds for a single activation.
const (
	MinActivationMonths = 1
	MaxActivationMonths = 24
)

// Membership is the persisted member flag of a user.
type Membership struct {
	UserID    string
	IsMember  bool
	ExpiresAt *time.Time
}

// MembershipStore persists membership records. Implementations must make
// each call atomic with respect to concurrent callers for the same user.
type MembershipStore interface {
	// Status returns the membership of userID, creating a non-member row if
	// none exists. A membership whose expiry is at or before now is flipped
	// to non-member in storage before being returned.
	Status(ctx context.Context, userID string, now time.Time) (Membership, error)

	// Activate grants membership for months (clamped with ClampMonths),
	// extending from the later of now and the current expiry.
	Activate(ctx context.Context, userID string, months int, now time.Time) (Membership, error)
}

// UsageLedger persists per-user, per-day, per-model usage counters.
type UsageLedger interface {
	// Usage returns the counters of userID for day. Models without a row
	// are absent from the map.
	Usage(ctx context.Context, userID, day string) (map[Model]int64, error)

	// Consume atomically inserts the (userID, day, model) counter with 1 or
	// increments it, but only while it is below limit. It returns the new
	// count, or ErrQuotaExhausted without writing anything.
	Consume(ctx context.Context, userID, day string, model Model, limit int64) (int64, error)
}

// Store is a backend that holds both membership and usage.
type Store interface {
	MembershipStore
	UsageLedger
}

// ClampMonths bounds an activation length to [MinActivationMonths, MaxActivationMonths].
func ClampMonths(months int) int {
	if months < MinActivationMonths {
		return MinActivationMonths
	}
	if months > MaxActivationMonths {
		return MaxActivationMonths
	}
	return months
}

// ExtendExpiry computes the expiry after activating months on top of the
// current expiry. Remaining paid time is kept: the extension starts from
// current when it lies in the future, otherwise from now.
func ExtendExpiry(current *time.Time, now time.Time, months int) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.Add(time.Duration(ClampMonths(months)*MembershipDays) * 24 * time.Hour)
}

// Expired reports whether m must be read as non-member at now.
func (m Membership) Expired(now time.Time) bool {
	return m.IsMember && m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}
