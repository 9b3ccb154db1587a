// Package xfyun implements the streaming synthesis channel: a single framed
// websocket exchange per request, with audio delivered as base64 PCM16 chunks
// that are reassembled into one waveform once the final frame arrives.
package xfyun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/abyssvoice/abyss-core/core/faults"
	"github.com/abyssvoice/abyss-core/core/texttospeech"
)

const defaultVoice = "xiaoyan"

type Client struct {
	infoEndpoint string
	httpClient   *http.Client
	sink         texttospeech.PlaybackSink
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// NewClient builds a streaming synthesis client. infoEndpoint serves the
// signed websocket coordinates; sink receives the finished waveforms.
func NewClient(infoEndpoint string, sink texttospeech.PlaybackSink, opts ...Option) *Client {
	client := &Client{
		infoEndpoint: infoEndpoint,
		sink:         sink,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type streamingInfo struct {
	URL   string `json:"url"`
	AppID string `json:"appId"`
}

// streamingInfo fetches the pre-signed websocket URL. The signature embedded
// in it is short-lived, so it is fetched fresh for every request.
func (c *Client) streamingInfo(ctx context.Context) (streamingInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.infoEndpoint, nil)
	if err != nil {
		return streamingInfo{}, fmt.Errorf("failed to build streaming-info request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return streamingInfo{}, faults.New(faults.NetworkTimeout, err, "failed to fetch streaming info")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return streamingInfo{}, faults.New(faults.NetworkTimeout, err, "failed to fetch streaming info")
	}
	if resp.StatusCode != http.StatusOK {
		return streamingInfo{}, faults.Newf(faults.ProviderUnavailable, nil,
			"streaming-info endpoint returned status %d", resp.StatusCode)
	}

	var info streamingInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return streamingInfo{}, faults.New(faults.ProviderUnavailable, err, "unparsable streaming info")
	}
	if info.URL == "" || info.AppID == "" {
		return streamingInfo{}, faults.New(faults.ProviderUnavailable, nil, "incomplete streaming info")
	}
	return info, nil
}
