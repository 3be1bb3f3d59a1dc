// Package deepseek implements vidquota.TextProvider on the OpenAI-compatible
// DeepSeek chat completion API.
package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ineyio/vidquota"
)

// Defaults used by New.
const (
	DefaultBaseURL     = "https://api.deepseek.com/v1"
	DefaultModel       = "deepseek-chat"
	DefaultTemperature = 1.3
	DefaultMaxTokens   = 2500
	DefaultTimeout     = 60 * time.Second
)

// Provider is a chat completion client for DeepSeek.
type Provider struct {
	baseURL     string
	model       string
	auth        vidquota.Auth
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

var _ vidquota.TextProvider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithModel overrides the chat model.
func WithModel(m string) Option {
	return func(p *Provider) { p.model = m }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = t }
}

// WithMaxTokens sets the completion token cap.
func WithMaxTokens(n int) Option {
	return func(p *Provider) { p.maxTokens = n }
}

// New creates a DeepSeek provider.
func New(auth vidquota.Auth, opts ...Option) *Provider {
	p := &Provider{
		baseURL:     DefaultBaseURL,
		model:       DefaultModel,
		auth:        auth,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "deepseek" }

// apiRequest is the OpenAI chat completion request format.
type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// apiResponse is the OpenAI chat completion response format.
type apiResponse struct {
	Choices []struct {
		Message      apiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
}

// Generate sends prompt as a single user message and returns the first choice.
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	jsonBody, err := json.Marshal(apiRequest{
		Model:       p.model,
		Messages:    []apiMessage{{Role: "user", Content: prompt}},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("vidquota/deepseek: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("vidquota/deepseek: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.auth.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", vidquota.ErrProviderTimeout, err)
		}
		return "", fmt.Errorf("%w: %w", vidquota.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: status %d: %s", vidquota.ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %w", vidquota.ErrBadResponse, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices in response", vidquota.ErrBadResponse)
	}

	return out.Choices[0].Message.Content, nil
}
