package vidquota

import "fmt"

// Limits maps each model to its daily generation limit.
type Limits map[Model]int64

// Policy maps membership status to daily limits.
type Policy interface {
	// LimitsFor returns the limit table for a member or a free user.
	LimitsFor(isMember bool) Limits
}

// TierPolicy is a Policy backed by two fixed tables.
type TierPolicy struct {
	free   Limits
	member Limits
}

var _ Policy = (*TierPolicy)(nil)

// DefaultFreeLimits and DefaultMemberLimits are used when the config does not
// override them.
var (
	DefaultFreeLimits = Limits{
		ModelSeedance20: 1,
		ModelSeedance18: 3,
	}
	DefaultMemberLimits = Limits{
		ModelSeedance20: 10,
		ModelSeedance18: 30,
	}
)

// NewTierPolicy builds a TierPolicy. Every supported model must appear in
// both tables with a non-negative limit.
func NewTierPolicy(free, member Limits) (*TierPolicy, error) {
	if err := free.validate("free"); err != nil {
		return nil, err
	}
	if err := member.validate("member"); err != nil {
		return nil, err
	}
	return &TierPolicy{free: free.clone(), member: member.clone()}, nil
}

// DefaultPolicy returns the built-in tier tables.
func DefaultPolicy() *TierPolicy {
	return &TierPolicy{free: DefaultFreeLimits.clone(), member: DefaultMemberLimits.clone()}
}

func (p *TierPolicy) LimitsFor(isMember bool) Limits {
	if isMember {
		return p.member.clone()
	}
	return p.free.clone()
}

func (l Limits) validate(tier string) error {
	for _, m := range SupportedModels {
		v, ok := l[m]
		if !ok {
			return fmt.Errorf("vidquota: %s limits: missing model %q", tier, m)
		}
		if v < 0 {
			return fmt.Errorf("vidquota: %s limits: negative limit %d for model %q", tier, v, m)
		}
	}
	for m := range l {
		if !m.Valid() {
			return fmt.Errorf("vidquota: %s limits: unknown model %q", tier, m)
		}
	}
	return nil
}

func (l Limits) clone() Limits {
	out := make(Limits, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}
