package vidquota

import "context"

// VideoProvider is the interface remote video-generation adapters implement.
type VideoProvider interface {
	// Name returns the provider identifier (e.g. "seedance", "mock").
	Name() string

	// GenerateVideo submits a generation job and returns the decoded
	// response. Timeouts map to ErrProviderTimeout, transport and HTTP
	// failures to ErrProviderUnavailable, undecodable bodies to ErrBadResponse.
	GenerateVideo(ctx context.Context, req VideoRequest) (VideoResult, error)
}

// TextProvider is the interface remote text-generation adapters implement.
type TextProvider interface {
	Name() string

	// Generate returns the completion for a single user prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Auth holds credentials for a provider.
type Auth struct {
	APIKey string `yaml:"api_key" json:"api_key"`
}

// VideoRequest is the request sent to a video provider adapter.
type VideoRequest struct {
	Model        Model
	DigitalHuman string
	VoiceStyle   string
	Script       string
}

// VideoResult is a provider response. Its schema is not fixed, so it is
// kept as decoded JSON; see ExtractVideoURL and ExtractTaskID.
type VideoResult struct {
	Raw map[string]any
}
