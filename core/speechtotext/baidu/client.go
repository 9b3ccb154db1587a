// Package baidu implements the remote recognition provider: capture audio is
// buffered into fixed-duration chunks and uploaded to the recognition
// endpoint, which transcribes each chunk and returns the running transcript.
// Intermediate chunk responses drive interim updates; the response to the
// chunk flagged as final is the authoritative transcript for the segment.
package baidu

import (
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/abyssvoice/abyss-core/core/baiducloud"
	"github.com/abyssvoice/abyss-core/core/speechtotext"
)

const defaultRequestTimeout = 15 * time.Second

type TranscriptionClient struct {
	capture  speechtotext.CaptureClient
	endpoint string

	httpClient *http.Client
	tokens     *baiducloud.TokenCache

	mu      sync.Mutex
	buffer  []byte
	halted  bool
	started bool

	uploads chan upload
	done    chan struct{}

	options speechtotext.TranscriptionOptions
}

type upload struct {
	audio   []byte
	isFinal bool
}

type Option func(*TranscriptionClient)

// WithTokenCache authenticates chunk uploads with cached vendor access
// tokens. Without it the endpoint is assumed to proxy authentication itself.
func WithTokenCache(tokens *baiducloud.TokenCache) Option {
	return func(c *TranscriptionClient) { c.tokens = tokens }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *TranscriptionClient) { c.httpClient = client }
}

func NewTranscriptionClient(capture speechtotext.CaptureClient, endpoint string, opts ...Option) *TranscriptionClient {
	client := &TranscriptionClient{
		capture:  capture,
		endpoint: endpoint,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   defaultRequestTimeout,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Supported reports whether this provider can run: it only needs a
// microphone source and a configured endpoint, so it serves as the fallback
// when the platform engine is unavailable.
func (c *TranscriptionClient) Supported() bool {
	return c.capture != nil && c.endpoint != ""
}

func (c *TranscriptionClient) isHalted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halted
}

func (c *TranscriptionClient) halt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.halted {
		return false
	}
	c.halted = true
	return true
}
