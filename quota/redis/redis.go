// Package redis provides a Redis-backed Store for vidquota.
//
// Memberships and daily usage counters are stored in Redis hashes and every
// mutation runs as a Lua script, so concurrent instances never overshoot a
// daily limit.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/vidquota"
)

// Store is a Redis-backed vidquota.Store.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
	usageTTL  time.Duration
}

var _ vidquota.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "vidquota:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithUsageTTL expires usage hashes after ttl. Zero keeps them forever.
func WithUsageTTL(ttl time.Duration) Option {
	return func(s *Store) { s.usageTTL = ttl }
}

// New creates a new Redis-backed Store.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "vidquota:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) memberKey(userID string) string {
	return s.keyPrefix + "member:" + userID
}

func (s *Store) usageKey(userID, day string) string {
	return s.keyPrefix + "usage:" + userID + ":" + day
}

// statusScript reads a membership, creating it and applying lazy expiry.
// KEYS[1] = membership hash key
// ARGV[1] = now (unix milliseconds)
//
// Returns {is_member, expires_at}; expires_at is 0 when unset.
var statusScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])

redis.call("HSETNX", key, "is_member", "0")
local is_member = redis.call("HGET", key, "is_member")
local exp = tonumber(redis.call("HGET", key, "expires_at") or "0")

if is_member ~= "1" then
    return {0, 0}
end
if exp > 0 and exp <= now then
    redis.call("HSET", key, "is_member", "0")
    redis.call("HDEL", key, "expires_at")
    return {0, 0}
end
return {1, exp}
`)

// activateScript extends a membership from max(now, current expiry).
// KEYS[1] = membership hash key
// ARGV[1] = now (unix milliseconds)
// ARGV[2] = extension (milliseconds)
//
// Returns the new expiry.
var activateScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local add = tonumber(ARGV[2])

local exp = tonumber(redis.call("HGET", key, "expires_at") or "0")
local base = now
if exp > now then
    base = exp
end
local new_exp = base + add

redis.call("HSET", key, "is_member", "1", "expires_at", string.format("%.0f", new_exp))
return new_exp
`)

// consumeScript increments a model counter while it is below the limit.
// KEYS[1] = usage hash key
// ARGV[1] = model field
// ARGV[2] = limit
// ARGV[3] = ttl seconds (0 = none)
//
// Returns the new count, or -1 when the limit is reached.
var consumeScript = goredis.NewScript(`
local key = KEYS[1]
local field = ARGV[1]
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local used = tonumber(redis.call("HGET", key, field) or "0")
if used >= limit then
    return -1
end

local n = redis.call("HINCRBY", key, field, 1)
if ttl > 0 then
    redis.call("EXPIRE", key, ttl)
end
return n
`)

// Status returns the membership of userID.
func (s *Store) Status(ctx context.Context, userID string, now time.Time) (vidquota.Membership, error) {
	vals, err := statusScript.Run(ctx, s.client,
		[]string{s.memberKey(userID)},
		now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return vidquota.Membership{}, fmt.Errorf("vidquota/redis: status: %w", err)
	}
	if len(vals) != 2 {
		return vidquota.Membership{}, fmt.Errorf("vidquota/redis: unexpected status result: %v", vals)
	}

	m := vidquota.Membership{UserID: userID, IsMember: vals[0] == 1}
	if m.IsMember && vals[1] > 0 {
		exp := time.UnixMilli(vals[1]).UTC()
		m.ExpiresAt = &exp
	}
	return m, nil
}

// Activate extends the membership of userID by months.
func (s *Store) Activate(ctx context.Context, userID string, months int, now time.Time) (vidquota.Membership, error) {
	add := time.Duration(vidquota.ClampMonths(months)*vidquota.MembershipDays) * 24 * time.Hour

	newExp, err := activateScript.Run(ctx, s.client,
		[]string{s.memberKey(userID)},
		now.UnixMilli(), add.Milliseconds(),
	).Int64()
	if err != nil {
		return vidquota.Membership{}, fmt.Errorf("vidquota/redis: activate: %w", err)
	}

	exp := time.UnixMilli(newExp).UTC()
	return vidquota.Membership{UserID: userID, IsMember: true, ExpiresAt: &exp}, nil
}

// Usage returns the per-model counters of userID for day.
func (s *Store) Usage(ctx context.Context, userID, day string) (map[vidquota.Model]int64, error) {
	vals, err := s.client.HGetAll(ctx, s.usageKey(userID, day)).Result()
	if err != nil {
		return nil, fmt.Errorf("vidquota/redis: usage: %w", err)
	}

	out := make(map[vidquota.Model]int64, len(vals))
	for field, raw := range vals {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("vidquota/redis: usage field %q: %w", field, err)
		}
		out[vidquota.Model(field)] = n
	}
	return out, nil
}

// Consume increments the counter of (userID, day, model) while it is below limit.
func (s *Store) Consume(ctx context.Context, userID, day string, model vidquota.Model, limit int64) (int64, error) {
	n, err := consumeScript.Run(ctx, s.client,
		[]string{s.usageKey(userID, day)},
		string(model), limit, int64(s.usageTTL.Seconds()),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("vidquota/redis: consume: %w", err)
	}
	if n < 0 {
		return 0, vidquota.ErrQuotaExhausted
	}
	return n, nil
}
