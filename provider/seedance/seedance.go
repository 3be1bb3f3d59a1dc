// Package seedance implements vidquota.VideoProvider for the Seedance
// digital-human video API.
package seedance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ineyio/vidquota"
)

// Provider calls the Seedance video generation endpoint.
type Provider struct {
	baseURL    string
	auth       vidquota.Auth
	httpClient *http.Client
}

var _ vidquota.VideoProvider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// New creates a Seedance provider for baseURL.
func New(baseURL string, auth vidquota.Auth, opts ...Option) *Provider {
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		auth:       auth,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "seedance" }

// apiRequest is the generation request body.
type apiRequest struct {
	Model        string `json:"model"`
	DigitalHuman string `json:"digital_human"`
	VoiceStyle   string `json:"voice_style"`
	Script       string `json:"script"`
}

// GenerateVideo submits one job. The deadline of ctx bounds the whole call.
func (p *Provider) GenerateVideo(ctx context.Context, req vidquota.VideoRequest) (vidquota.VideoResult, error) {
	jsonBody, err := json.Marshal(apiRequest{
		Model:        req.Model.ProviderName(),
		DigitalHuman: req.DigitalHuman,
		VoiceStyle:   req.VoiceStyle,
		Script:       req.Script,
	})
	if err != nil {
		return vidquota.VideoResult{}, fmt.Errorf("vidquota/seedance: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/video/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return vidquota.VideoResult{}, fmt.Errorf("vidquota/seedance: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.auth.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.auth.APIKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return vidquota.VideoResult{}, mapTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if err := mapHTTPError(resp); err != nil {
		return vidquota.VideoResult{}, err
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		if ctx.Err() != nil {
			return vidquota.VideoResult{}, mapTransportError(ctx, err)
		}
		return vidquota.VideoResult{}, fmt.Errorf("%w: %w", vidquota.ErrBadResponse, err)
	}
	if raw == nil {
		return vidquota.VideoResult{}, fmt.Errorf("%w: response is not a JSON object", vidquota.ErrBadResponse)
	}

	return vidquota.VideoResult{Raw: raw}, nil
}

func mapTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", vidquota.ErrProviderTimeout, err)
	}
	return fmt.Errorf("%w: %w", vidquota.ErrProviderUnavailable, err)
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read body for error context, but don't fail if we can't.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch resp.StatusCode {
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return fmt.Errorf("%w: status %d: %s", vidquota.ErrProviderTimeout, resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		return fmt.Errorf("%w: status %d: %s", vidquota.ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
