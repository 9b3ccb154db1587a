// Package deepseek implements the upstream completion client over the
// OpenAI-compatible chat API.
package deepseek

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/abyssvoice/abyss-core/core/completions"
	"github.com/abyssvoice/abyss-core/core/faults"
)

const (
	defaultBaseURL = "https://api.deepseek.com/v1"
	defaultModel   = "deepseek-chat"

	defaultRequestTimeout = 30 * time.Second
)

type Client struct {
	api   *openai.Client
	model string
}

type Option func(*clientConfig)

type clientConfig struct {
	baseURL string
	model   string
	timeout time.Duration
}

func WithBaseURL(baseURL string) Option {
	return func(c *clientConfig) { c.baseURL = baseURL }
}

func WithModel(model string) Option {
	return func(c *clientConfig) { c.model = model }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) { c.timeout = timeout }
}

func NewClient(apiKey string, opts ...Option) *Client {
	cfg := clientConfig{
		baseURL: defaultBaseURL,
		model:   defaultModel,
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	apiConfig := openai.DefaultConfig(apiKey)
	apiConfig.BaseURL = cfg.baseURL
	apiConfig.HTTPClient = &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.timeout,
	}

	return &Client{
		api:   openai.NewClientWithConfig(apiConfig),
		model: cfg.model,
	}
}

func (c *Client) Complete(ctx context.Context, request completions.ChatRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "deepseek.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.model", c.model),
		attribute.Int("request.messages", len(request.Messages)),
	)

	if err := request.Validate(); err != nil {
		return "", err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toMessages(request.Messages),
		Temperature: request.Temperature,
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", faults.New(faults.ProviderUnavailable, nil, "upstream returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps upstream failures onto the shared taxonomy so the gateway's
// retry policy does not need to know the vendor SDK.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return faults.New(faults.UpstreamAuthError, err, "upstream rejected credentials")
		case apiErr.HTTPStatusCode == http.StatusBadRequest || apiErr.HTTPStatusCode == http.StatusUnprocessableEntity:
			return faults.New(faults.ParameterInvalid, err, "upstream rejected request")
		default:
			// Overload and server-side failures are worth retrying.
			return faults.New(faults.ProviderUnavailable, err, "upstream request failed")
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return faults.New(faults.NetworkTimeout, err, "upstream request timed out")
	}
	return faults.New(faults.NetworkTimeout, err, "upstream request failed")
}
