package vidquota

import "time"

// Meter observes quota and generation events for monitoring/logging.
type Meter interface {
	// OnGenerate is called once per GenerateVideo call, on success or failure.
	OnGenerate(event GenerateEvent)

	// OnActivate is called after a membership activation.
	OnActivate(event ActivateEvent)
}

// GenerateEvent describes the outcome of a generation request.
type GenerateEvent struct {
	UserID   string
	Model    Model
	Provider string
	Stage    Stage // last stage reached
	Success  bool
	Duration time.Duration // remote call duration, zero if never called
	Used     int64         // counter after commit
	Error    error

	// CommitError is set when the provider succeeded but the usage could not
	// be recorded. The generation is still returned to the caller.
	CommitError error
}

// ActivateEvent describes a membership activation.
type ActivateEvent struct {
	UserID     string
	Months     int
	PriceCents int64
	ExpiresAt  time.Time
	Error      error
}
