// Package ai implements the model provider on any OpenAI-compatible chat
// completions API. OpenRouter is the default endpoint.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/saint0x/reposage/pkg/api"
	"github.com/saint0x/reposage/pkg/log"
	"github.com/saint0x/reposage/pkg/types"
)

const (
	// DefaultBaseURL is the OpenRouter API
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// DefaultModel is used when no model is configured
	DefaultModel = "qwen/qwq-32b:free"

	defaultMaxTokens   = 4096
	defaultTemperature = 0.7
)

// Provider handles chat completions
type Provider struct {
	logger      *log.Logger
	client      openai.Client
	maxTokens   int64
	temperature float64
}

type settings struct {
	baseURL     string
	httpClient  *http.Client
	maxTokens   int64
	temperature float64
}

// Option configures a Provider
type Option func(*settings)

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs
func WithBaseURL(baseURL string) Option {
	return func(s *settings) {
		s.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		s.httpClient = c
	}
}

// WithMaxTokens bounds the completion length
func WithMaxTokens(n int) Option {
	return func(s *settings) {
		s.maxTokens = int64(n)
	}
}

// WithTemperature sets the sampling temperature
func WithTemperature(t float64) Option {
	return func(s *settings) {
		s.temperature = t
	}
}

// New creates a provider authenticated with apiKey
func New(logger *log.Logger, apiKey string, opts ...Option) (*Provider, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if apiKey == "" {
		return nil, errors.New("model API key is required")
	}

	s := settings{
		baseURL:     DefaultBaseURL,
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if !strings.HasSuffix(s.baseURL, "/") {
		s.baseURL += "/"
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(s.baseURL),
		// retries belong to the api package, which owns the backoff policy
		option.WithMaxRetries(0),
		option.WithHeader("X-Title", "RepoSage"),
	}
	if s.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(s.httpClient))
	}

	return &Provider{
		logger:      logger,
		client:      openai.NewClient(reqOpts...),
		maxTokens:   s.maxTokens,
		temperature: s.temperature,
	}, nil
}

// Complete sends prompt to model and returns the first choice's content
func (p *Provider) Complete(ctx context.Context, model string, prompt types.Prompt) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	messages = append(messages, openai.UserMessage(prompt.User))

	p.logger.Debug("Requesting completion from %s (%d prompt bytes)", model, len(prompt.System)+len(prompt.User))
	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		MaxTokens:   openai.Int(p.maxTokens),
		Temperature: openai.Float(p.temperature),
	})
	if err != nil {
		return "", classify(fmt.Errorf("failed to generate completion: %w", err))
	}

	if len(completion.Choices) == 0 {
		return "", api.Errorf(api.KindParse, "no response from model %s", model)
	}
	content := completion.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", api.Errorf(api.KindParse, "empty response from model %s", model)
	}
	return content, nil
}

// classify maps SDK errors onto the api error kinds
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return api.NewError(kindForStatus(apiErr.StatusCode), err)
	}
	return api.NewError(api.KindOf(err), err)
}

func kindForStatus(status int) api.Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return api.KindAuth
	case status == http.StatusNotFound:
		return api.KindNotFound
	case status == http.StatusTooManyRequests:
		return api.KindRateLimited
	case status == http.StatusRequestTimeout, status >= 500:
		return api.KindTransient
	default:
		return api.KindUnknown
	}
}
