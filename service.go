package vidquota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stage is a step of the per-request generation state machine:
// validating → quota_checked → remote_calling → committing → done,
// with an exit to failed from any step.
type Stage string

const (
	StageValidating    Stage = "validating"
	StageQuotaChecked  Stage = "quota_checked"
	StageRemoteCalling Stage = "remote_calling"
	StageCommitting    Stage = "committing"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"
)

func (s Stage) String() string { return string(s) }

// Request defaults.
const (
	DefaultDigitalHuman = "default"
	DefaultVoiceStyle   = "female"
)

// GenerateRequest is a video-generation request from a user.
type GenerateRequest struct {
	UserID       string
	Model        string
	DigitalHuman string
	VoiceStyle   string
	Script       string
}

// GenerateResult is returned after a successful generation.
type GenerateResult struct {
	Model        Model          `json:"model"`
	DigitalHuman string         `json:"digital_human"`
	VoiceStyle   string         `json:"voice_style"`
	VideoURL     *string        `json:"video_url"`
	TaskID       *string        `json:"task_id"`
	RawResult    map[string]any `json:"raw_result"`
	Quota        QuotaSnapshot  `json:"quota"`
}

// ActivationResult is returned after a membership activation.
type ActivationResult struct {
	QuotaSnapshot
	RechargeMonths int     `json:"recharge_months"`
	Price          float64 `json:"price"`
	PriceCents     int64   `json:"price_cents"`
}

// Service accounts video quota and memberships and orchestrates generation
// calls against a remote provider.
type Service struct {
	cfg    Config
	loc    *time.Location
	policy Policy
	store  Store
	video  VideoProvider
	meter  Meter
	clock  Clock
	health *HealthTracker
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy overrides the limit policy built from Config.Limits.
func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(s *Service) { s.meter = m }
}

// WithClock sets the clock used for usage days and membership expiry.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithHealthTracker enables fail-fast for models whose provider keeps failing.
func WithHealthTracker(h *HealthTracker) Option {
	return func(s *Service) { s.health = h }
}

// NewService creates a Service. Defaults (policy from cfg, NoopMeter-like
// meter, system clock, no health gate) are used unless overridden via options.
func NewService(cfg Config, video VideoProvider, store Store, opts ...Option) (*Service, error) {
	if video == nil {
		return nil, fmt.Errorf("vidquota: a video provider is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vidquota: a store is required")
	}

	cfg = cfg.WithDefaults()
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("vidquota: timeout must be positive, got %s", cfg.Timeout)
	}

	s := &Service{
		cfg:   cfg,
		loc:   cfg.Location(),
		store: store,
		video: video,
	}

	for _, opt := range opts {
		opt(s)
	}

	// Apply defaults after options.
	if s.policy == nil {
		p, err := cfg.Policy()
		if err != nil {
			return nil, err
		}
		s.policy = p
	}
	if s.meter == nil {
		s.meter = &noopMeter{}
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}

	return s, nil
}

// GetQuota returns a fresh quota snapshot for userID.
func (s *Service) GetQuota(ctx context.Context, userID string) (QuotaSnapshot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return QuotaSnapshot{}, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	return BuildSnapshot(ctx, s.policy, s.store, s.store, userID, s.clock.Now(), s.loc)
}

// ActivateMembership grants userID membership for months (clamped to
// [1, 24]) and returns the updated snapshot with the charged price.
func (s *Service) ActivateMembership(ctx context.Context, userID string, months int) (ActivationResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ActivationResult{}, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}

	months = ClampMonths(months)
	priceCents := int64(months) * s.cfg.PricePerMonthCents
	now := s.clock.Now()

	m, err := s.store.Activate(ctx, userID, months, now)
	if err != nil {
		err = StorageError("activate membership", err)
		s.meter.OnActivate(ActivateEvent{UserID: userID, Months: months, PriceCents: priceCents, Error: err})
		return ActivationResult{}, err
	}

	ev := ActivateEvent{UserID: userID, Months: months, PriceCents: priceCents}
	if m.ExpiresAt != nil {
		ev.ExpiresAt = *m.ExpiresAt
	}
	s.meter.OnActivate(ev)

	snap, err := BuildSnapshot(ctx, s.policy, s.store, s.store, userID, now, s.loc)
	if err != nil {
		return ActivationResult{}, err
	}

	return ActivationResult{
		QuotaSnapshot:  snap,
		RechargeMonths: months,
		Price:          float64(priceCents) / 100,
		PriceCents:     priceCents,
	}, nil
}

// GenerateVideo validates the request, checks quota, calls the provider and
// records usage. Quota is consumed if and only if the provider succeeded,
// up to the daily limit: a request that loses a race for the last unit still
// gets its video and reports ErrQuotaExhausted in GenerateEvent.CommitError.
// Provider failures are never retried here.
func (s *Service) GenerateVideo(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	ev := GenerateEvent{
		UserID:   strings.TrimSpace(req.UserID),
		Provider: s.video.Name(),
	}

	// validating: no state is touched before this passes.
	script := strings.TrimSpace(req.Script)
	if ev.UserID == "" || script == "" {
		return GenerateResult{}, s.fail(&ev, StageValidating,
			fmt.Errorf("%w: user_id and script are required", ErrInvalidRequest), nil)
	}
	model, err := ParseModel(req.Model)
	if err != nil {
		return GenerateResult{}, s.fail(&ev, StageValidating, err, nil)
	}
	ev.Model = model

	digitalHuman := strings.TrimSpace(req.DigitalHuman)
	if digitalHuman == "" {
		digitalHuman = DefaultDigitalHuman
	}
	voiceStyle := strings.TrimSpace(req.VoiceStyle)
	if voiceStyle == "" {
		voiceStyle = DefaultVoiceStyle
	}

	// quota_checked: always a fresh read, never a cached one.
	now := s.clock.Now()
	snap, err := BuildSnapshot(ctx, s.policy, s.store, s.store, ev.UserID, now, s.loc)
	if err != nil {
		return GenerateResult{}, s.fail(&ev, StageQuotaChecked, err, nil)
	}
	allowance := snap.Models[model]
	if allowance.Remaining <= 0 {
		return GenerateResult{}, s.fail(&ev, StageQuotaChecked,
			fmt.Errorf("%w: model %s used %d of %d", ErrQuotaExhausted, model, allowance.Used, allowance.Limit), &snap)
	}

	// remote_calling: the caller's cancellation is not propagated, only the timeout.
	if s.health != nil && s.health.GetHealth(model) == HealthUnhealthy {
		return GenerateResult{}, s.fail(&ev, StageRemoteCalling,
			fmt.Errorf("%w: model %s is failing, retry later", ErrProviderUnavailable, model), &snap)
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	result, err := s.video.GenerateVideo(callCtx, VideoRequest{
		Model:        model,
		DigitalHuman: digitalHuman,
		VoiceStyle:   voiceStyle,
		Script:       script,
	})
	ev.Duration = time.Since(start)

	if err != nil {
		if s.health != nil {
			s.health.RecordFailure(model)
		}
		return GenerateResult{}, s.fail(&ev, StageRemoteCalling, classifyProviderError(callCtx, err), &snap)
	}
	if s.health != nil {
		s.health.RecordSuccess(model)
	}

	// committing: the generation already happened, so a commit failure is
	// reported to the meter but the result still goes back to the caller.
	commitCtx := context.WithoutCancel(ctx)
	ev.Stage = StageCommitting
	used, err := s.store.Consume(commitCtx, ev.UserID, snap.UsageDate, model, allowance.Limit)
	if err != nil {
		if !errors.Is(err, ErrQuotaExhausted) {
			err = StorageError("consume usage", err)
		}
		ev.CommitError = err
		used = allowance.Used
	}
	ev.Used = used

	final, err := BuildSnapshot(commitCtx, s.policy, s.store, s.store, ev.UserID, now, s.loc)
	if err != nil {
		final = snap.withUsed(model, used)
	}

	ev.Stage = StageDone
	ev.Success = true
	s.meter.OnGenerate(ev)

	return GenerateResult{
		Model:        model,
		DigitalHuman: digitalHuman,
		VoiceStyle:   voiceStyle,
		VideoURL:     ExtractVideoURL(result.Raw),
		TaskID:       ExtractTaskID(result.Raw),
		RawResult:    result.Raw,
		Quota:        final,
	}, nil
}

func (s *Service) fail(ev *GenerateEvent, stage Stage, err error, snap *QuotaSnapshot) error {
	ev.Stage = stage
	ev.Error = err
	s.meter.OnGenerate(*ev)
	return &GenerationError{
		Err:    err,
		Stage:  stage,
		UserID: ev.UserID,
		Model:  ev.Model,
		Quota:  snap,
	}
}

// classifyProviderError maps an adapter error onto the provider taxonomy.
func classifyProviderError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrProviderTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrProviderTimeout, err)
	case IsProviderFailure(err):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
}

func (s QuotaSnapshot) withUsed(model Model, used int64) QuotaSnapshot {
	out := s
	out.Models = make(map[Model]ModelQuota, len(s.Models))
	for k, v := range s.Models {
		out.Models[k] = v
	}
	mq := out.Models[model]
	mq.Used = used
	mq.Remaining = mq.Limit - used
	if mq.Remaining < 0 {
		mq.Remaining = 0
	}
	out.Models[model] = mq
	return out
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (m *noopMeter) OnGenerate(GenerateEvent) {}
func (m *noopMeter) OnActivate(ActivateEvent) {}
