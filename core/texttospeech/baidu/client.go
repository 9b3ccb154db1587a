// Package baidu implements the buffered synthesis channel: one authenticated
// form POST per request, returning the whole utterance as raw PCM that is
// decoded into a waveform and handed to the playback sink.
package baidu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/abyssvoice/abyss-core/core/audio"
	"github.com/abyssvoice/abyss-core/core/baiducloud"
	"github.com/abyssvoice/abyss-core/core/faults"
	"github.com/abyssvoice/abyss-core/core/texttospeech"
	"github.com/abyssvoice/abyss-core/internal/ratelimit"
)

const (
	defaultVoiceID = "0"

	// aue 4 requests raw 16 kHz PCM so the payload feeds the shared waveform
	// pipeline without a decoder.
	audioEncodingPCM16k = "4"
)

type Client struct {
	endpoint string
	cuid     string

	tokens  *baiducloud.TokenCache
	limiter *ratelimit.Limiter

	httpClient *http.Client
	sink       texttospeech.PlaybackSink

	now func() time.Time
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = limiter }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient builds a buffered synthesis client. cuid identifies this device
// to the vendor and doubles as the rate-limit identity.
func NewClient(endpoint, cuid string, tokens *baiducloud.TokenCache, sink texttospeech.PlaybackSink, opts ...Option) *Client {
	client := &Client{
		endpoint: endpoint,
		cuid:     cuid,
		tokens:   tokens,
		sink:     sink,
		limiter:  ratelimit.New(ratelimit.Config{}),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Speak synthesizes the whole text in one request. Validation and the rate
// limiter run before any network traffic.
func (c *Client) Speak(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) error {
	ctx, span := tracer.Start(ctx, "baidu.Speak")
	defer span.End()

	options := texttospeech.Apply(opts...)
	if err := texttospeech.ValidateBufferedText(text); err != nil {
		return err
	}
	if err := options.ValidateParameters(); err != nil {
		return err
	}

	if !c.limiter.Allow(c.cuid, c.now()) {
		return faults.New(faults.RateLimited, nil, "synthesis request budget exhausted")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	payload, err := c.synthesize(ctx, text, token, options)
	if err != nil {
		return err
	}

	waveform := audio.Waveform{
		Samples:    audio.Normalize(audio.DecodePCM16(payload)),
		SampleRate: options.EncodingInfo.SampleRate,
	}
	if waveform.IsEmpty() {
		return faults.New(faults.ProviderUnavailable, nil, "synthesis produced no audio")
	}

	if err := c.sink.Play(ctx, waveform,
		options.PlaybackStartedCallback, options.PlaybackEndedCallback); err != nil {
		return faults.New(faults.AudioPlaybackError, err, "failed to start playback")
	}
	return nil
}

func (c *Client) synthesize(ctx context.Context, text, token string, options texttospeech.SynthesisOptions) ([]byte, error) {
	voice := options.Voice
	if voice == "" {
		voice = defaultVoiceID
	}

	form := url.Values{}
	form.Set("tex", text)
	form.Set("tok", token)
	form.Set("cuid", c.cuid)
	form.Set("ctp", "1")
	form.Set("lan", "zh")
	form.Set("spd", strconv.Itoa(options.Speed))
	form.Set("pit", strconv.Itoa(options.Pitch))
	form.Set("vol", strconv.Itoa(options.Volume))
	form.Set("per", voice)
	form.Set("aue", audioEncodingPCM16k)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, faults.New(faults.NetworkTimeout, err, "synthesis request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.New(faults.NetworkTimeout, err, "synthesis request failed")
	}

	// The vendor reports errors as a JSON body with a 200 status; only the
	// content type tells success from failure.
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "audio/") {
		var vendorErr struct {
			ErrNo  int    `json:"err_no"`
			ErrMsg string `json:"err_msg"`
		}
		if err := json.Unmarshal(body, &vendorErr); err == nil && vendorErr.ErrMsg != "" {
			return nil, faults.Newf(faults.ProviderUnavailable, nil,
				"synthesis rejected: %s (%d)", vendorErr.ErrMsg, vendorErr.ErrNo)
		}
		return nil, faults.Newf(faults.ProviderUnavailable, nil,
			"unexpected synthesis response type %q", mediaType)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, faults.Newf(faults.ProviderUnavailable, nil,
			"synthesis endpoint returned status %d", resp.StatusCode)
	}

	return body, nil
}
