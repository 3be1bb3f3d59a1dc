// Package mock provides deterministic video and text providers for tests and
// for running the service without remote credentials.
package mock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ineyio/vidquota"
)

// SampleVideoURL is the video URL returned by the default mock response.
const SampleVideoURL = "https://example.com/video.mp4"

// Provider is a mock video provider.
type Provider struct {
	name         string
	latency      time.Duration
	failAfter    int
	callCount    atomic.Int64
	staticErr    error
	responseFunc func(vidquota.VideoRequest) (vidquota.VideoResult, error)
}

var _ vidquota.VideoProvider = (*Provider)(nil)

// Option configures a mock Provider.
type Option func(*Provider)

// New creates a mock provider with the given options.
func New(opts ...Option) *Provider {
	p := &Provider{name: "mock"}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithName sets the provider name.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithFailAfter makes the provider fail after N successful calls.
func WithFailAfter(n int) Option {
	return func(p *Provider) { p.failAfter = n }
}

// WithError makes the provider always return this error.
func WithError(err error) Option {
	return func(p *Provider) { p.staticErr = err }
}

// WithResponseFunc sets a custom response function.
func WithResponseFunc(fn func(vidquota.VideoRequest) (vidquota.VideoResult, error)) Option {
	return func(p *Provider) { p.responseFunc = fn }
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) GenerateVideo(ctx context.Context, req vidquota.VideoRequest) (vidquota.VideoResult, error) {
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return vidquota.VideoResult{}, ctx.Err()
		}
	}

	count := p.callCount.Add(1)

	if p.staticErr != nil {
		return vidquota.VideoResult{}, p.staticErr
	}

	if p.failAfter > 0 && int(count) > p.failAfter {
		return vidquota.VideoResult{}, vidquota.ErrProviderUnavailable
	}

	if p.responseFunc != nil {
		return p.responseFunc(req)
	}

	return vidquota.VideoResult{Raw: map[string]any{
		"task_id": TaskID(req),
		"status":  "succeeded",
		"model":   req.Model.ProviderName(),
		"data": map[string]any{
			"video_url": SampleVideoURL,
		},
	}}, nil
}

// CallCount returns the number of calls made to the provider.
func (p *Provider) CallCount() int64 { return p.callCount.Load() }

// TaskID returns the deterministic task id the default response carries for req.
func TaskID(req vidquota.VideoRequest) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(string(req.Model)+"\x00"+req.Script)).String()
}

// TextProvider is a mock text provider.
type TextProvider struct {
	reply     string
	staticErr error
	callCount atomic.Int64
	lastInput atomic.Value
}

var _ vidquota.TextProvider = (*TextProvider)(nil)

// NewText creates a text provider that always answers reply.
func NewText(reply string) *TextProvider {
	return &TextProvider{reply: reply}
}

// NewFailingText creates a text provider that always fails with err.
func NewFailingText(err error) *TextProvider {
	return &TextProvider{staticErr: err}
}

func (p *TextProvider) Name() string { return "mock" }

func (p *TextProvider) Generate(_ context.Context, prompt string) (string, error) {
	p.callCount.Add(1)
	p.lastInput.Store(prompt)
	if p.staticErr != nil {
		return "", p.staticErr
	}
	return p.reply, nil
}

// CallCount returns the number of calls made to the provider.
func (p *TextProvider) CallCount() int64 { return p.callCount.Load() }

// LastPrompt returns the prompt of the most recent call.
func (p *TextProvider) LastPrompt() string {
	s, _ := p.lastInput.Load().(string)
	return s
}
