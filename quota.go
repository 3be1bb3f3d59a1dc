package vidquota

import (
	"context"
	"time"
)

// QuotaSnapshot is a point-in-time view of a user's membership and daily
// allowances. It is derived, never persisted.
type QuotaSnapshot struct {
	UserID    string               `json:"user_id"`
	IsMember  bool                 `json:"is_member"`
	ExpiresAt *time.Time           `json:"member_expire_at"`
	UsageDate string               `json:"usage_date"`
	Models    map[Model]ModelQuota `json:"models"`
}

// ModelQuota is the allowance of one model within a snapshot.
type ModelQuota struct {
	Limit     int64 `json:"limit"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
}

// Remaining returns the remaining allowance for m, 0 for unknown models.
func (s QuotaSnapshot) Remaining(m Model) int64 {
	return s.Models[m].Remaining
}

// BuildSnapshot composes the membership status, today's usage and the
// policy limits of userID. now also drives lazy membership expiry.
func BuildSnapshot(
	ctx context.Context,
	policy Policy,
	members MembershipStore,
	ledger UsageLedger,
	userID string,
	now time.Time,
	loc *time.Location,
) (QuotaSnapshot, error) {
	status, err := members.Status(ctx, userID, now)
	if err != nil {
		return QuotaSnapshot{}, StorageError("membership status", err)
	}

	day := UsageDay(now, loc)
	used, err := ledger.Usage(ctx, userID, day)
	if err != nil {
		return QuotaSnapshot{}, StorageError("usage snapshot", err)
	}

	return newSnapshot(userID, day, status, policy.LimitsFor(status.IsMember), used), nil
}

func newSnapshot(userID, day string, status Membership, limits Limits, used map[Model]int64) QuotaSnapshot {
	snap := QuotaSnapshot{
		UserID:    userID,
		IsMember:  status.IsMember,
		UsageDate: day,
		Models:    make(map[Model]ModelQuota, len(SupportedModels)),
	}
	if status.IsMember && status.ExpiresAt != nil {
		exp := *status.ExpiresAt
		snap.ExpiresAt = &exp
	}

	for _, m := range SupportedModels {
		limit := limits[m]
		u := used[m]
		remaining := limit - u
		if remaining < 0 {
			remaining = 0
		}
		snap.Models[m] = ModelQuota{Limit: limit, Used: u, Remaining: remaining}
	}
	return snap
}
