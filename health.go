package vidquota

import (
	"sync"
	"time"
)

const (
	healthFailureThreshold = 3
	healthFailureWindow    = 5 * time.Minute
	healthUnhealthyPeriod  = 30 * time.Second
)

// HealthState describes the health of a remote model endpoint.
type HealthState int

const (
	HealthHealthy HealthState = iota
	HealthUnhealthy
	HealthHalfOpen
)

func (h HealthState) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	case HealthHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// HealthTracker tracks per-model provider health using a circuit breaker.
// While a model is unhealthy, generation requests fail fast without calling
// the provider and without touching quota.
type HealthTracker struct {
	mu     sync.Mutex
	clock  Clock
	models map[Model]*modelHealth
}

type modelHealth struct {
	state       HealthState
	failures    []time.Time // sliding window of failure timestamps
	unhealthyAt time.Time
}

// NewHealthTracker creates a HealthTracker on the system clock.
func NewHealthTracker() *HealthTracker {
	return NewHealthTrackerWithClock(SystemClock{})
}

// NewHealthTrackerWithClock creates a HealthTracker on clock.
func NewHealthTrackerWithClock(clock Clock) *HealthTracker {
	return &HealthTracker{
		clock:  clock,
		models: make(map[Model]*modelHealth),
	}
}

// GetHealth returns the current state for model.
func (h *HealthTracker) GetHealth(model Model) HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()

	mh, ok := h.models[model]
	if !ok {
		return HealthHealthy
	}

	// Unhealthy period elapsed → let one probe through.
	if mh.state == HealthUnhealthy && h.clock.Now().Sub(mh.unhealthyAt) >= healthUnhealthyPeriod {
		mh.state = HealthHalfOpen
	}
	return mh.state
}

// RecordSuccess records a successful provider call for model.
func (h *HealthTracker) RecordSuccess(model Model) {
	h.mu.Lock()
	defer h.mu.Unlock()

	mh := h.getOrCreate(model)
	mh.state = HealthHealthy
	mh.failures = mh.failures[:0]
}

// RecordFailure records a failed provider call for model.
func (h *HealthTracker) RecordFailure(model Model) {
	h.mu.Lock()
	defer h.mu.Unlock()

	mh := h.getOrCreate(model)
	now := h.clock.Now()

	// A failed half-open probe reopens the breaker immediately.
	if mh.state == HealthHalfOpen {
		mh.state = HealthUnhealthy
		mh.unhealthyAt = now
		return
	}
	if mh.state == HealthUnhealthy {
		return
	}

	cutoff := now.Add(-healthFailureWindow)
	valid := mh.failures[:0]
	for _, t := range mh.failures {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	mh.failures = append(valid, now)

	if len(mh.failures) >= healthFailureThreshold {
		mh.state = HealthUnhealthy
		mh.unhealthyAt = now
	}
}

func (h *HealthTracker) getOrCreate(model Model) *modelHealth {
	mh, ok := h.models[model]
	if !ok {
		mh = &modelHealth{state: HealthHealthy}
		h.models[model] = mh
	}
	return mh
}
