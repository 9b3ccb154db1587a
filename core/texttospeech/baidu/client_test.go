package baidu

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abyssvoice/abyss-core/core/audio"
	"github.com/abyssvoice/abyss-core/core/baiducloud"
	"github.com/abyssvoice/abyss-core/core/faults"
	"github.com/abyssvoice/abyss-core/core/texttospeech"
	"github.com/abyssvoice/abyss-core/internal/ratelimit"
)

type sinkStub struct {
	waveforms []audio.Waveform
}

func (s *sinkStub) Play(_ context.Context, waveform audio.Waveform, onStarted func(), onEnded func(interrupted bool)) error {
	s.waveforms = append(s.waveforms, waveform)
	onStarted()
	onEnded(false)
	return nil
}

func pcmBytes(samples ...int16) []byte {
	payload := make([]byte, 2*len(samples))
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(payload[2*i:], uint16(sample))
	}
	return payload
}

func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok-1","expires_in":2592000}`)
	}))
}

func TestSpeakPostsFormAndPlaysDecodedWaveform(t *testing.T) {
	tokens := tokenServer(t)
	defer tokens.Close()

	var synthesisCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		synthesisCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("unexpected request body: %v", err)
		}
		if got := r.FormValue("tex"); got != "你好" {
			t.Errorf("expected text forwarded, got %q", got)
		}
		if got := r.FormValue("tok"); got != "tok-1" {
			t.Errorf("expected cached token, got %q", got)
		}
		if got := r.FormValue("cuid"); got != "device-1" {
			t.Errorf("expected device identity, got %q", got)
		}
		if got := r.FormValue("spd"); got != "7" {
			t.Errorf("expected speed forwarded, got %q", got)
		}
		if got := r.FormValue("aue"); got != audioEncodingPCM16k {
			t.Errorf("expected raw PCM encoding requested, got %q", got)
		}
		w.Header().Set("Content-Type", "audio/basic")
		w.Write(pcmBytes(16384, -32768))
	}))
	defer server.Close()

	sink := &sinkStub{}
	client := NewClient(server.URL, "device-1", baiducloud.NewTokenCache(tokens.URL), sink)

	started := 0
	ended := 0
	err := client.Speak(context.Background(), "你好",
		texttospeech.WithSpeed(7),
		texttospeech.WithPlaybackStartedCallback(func() { started++ }),
		texttospeech.WithPlaybackEndedCallback(func(bool) { ended++ }),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := synthesisCalls.Load(); got != 1 {
		t.Fatalf("expected one synthesis request, got %d", got)
	}
	if len(sink.waveforms) != 1 {
		t.Fatalf("expected one waveform, got %d", len(sink.waveforms))
	}
	samples := sink.waveforms[0].Samples
	if len(samples) != 2 || samples[0] != 0.5 || samples[1] != -1.0 {
		t.Fatalf("expected normalized samples, got %v", samples)
	}
	if started != 1 || ended != 1 {
		t.Fatalf("expected playback callbacks once, got started=%d ended=%d", started, ended)
	}
}

func TestSpeakValidatesBeforeAnyNetwork(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := NewClient(server.URL, "device-1", baiducloud.NewTokenCache(server.URL), &sinkStub{})

	if err := client.Speak(context.Background(), "hello", texttospeech.WithSpeed(20)); !errors.Is(err, faults.ParameterInvalid) {
		t.Fatalf("expected parameter-invalid for speed=20, got %v", err)
	}
	if err := client.Speak(context.Background(), strings.Repeat("a", 1001)); !errors.Is(err, faults.ParameterInvalid) {
		t.Fatalf("expected parameter-invalid for 1001-rune text, got %v", err)
	}
	if got := calls.Load(); got != 0 {
		t.Fatalf("expected no network traffic for invalid requests, got %d calls", got)
	}
}

func TestSpeakRejectsWhenRateLimited(t *testing.T) {
	tokens := tokenServer(t)
	defer tokens.Close()

	var synthesisCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		synthesisCalls.Add(1)
		w.Header().Set("Content-Type", "audio/basic")
		w.Write(pcmBytes(100))
	}))
	defer server.Close()

	now := time.Now()
	client := NewClient(server.URL, "device-1", baiducloud.NewTokenCache(tokens.URL), &sinkStub{},
		WithRateLimiter(ratelimit.New(ratelimit.Config{Limit: 1, Window: 15 * time.Minute})),
		WithClock(func() time.Time { return now }),
	)

	if err := client.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error on first request: %v", err)
	}
	err := client.Speak(context.Background(), "hello")
	if !errors.Is(err, faults.RateLimited) {
		t.Fatalf("expected rate-limited classification, got %v", err)
	}
	if got := synthesisCalls.Load(); got != 1 {
		t.Fatalf("expected the limited request to skip the network, got %d calls", got)
	}
}

func TestSpeakSurfacesVendorErrorBody(t *testing.T) {
	tokens := tokenServer(t)
	defer tokens.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"err_no":502,"err_msg":"speech quota exceeded"}`)
	}))
	defer server.Close()

	sink := &sinkStub{}
	client := NewClient(server.URL, "device-1", baiducloud.NewTokenCache(tokens.URL), sink)

	err := client.Speak(context.Background(), "hello")
	if !errors.Is(err, faults.ProviderUnavailable) {
		t.Fatalf("expected provider-unavailable classification, got %v", err)
	}
	if !strings.Contains(err.Error(), "speech quota exceeded") {
		t.Fatalf("expected vendor message surfaced, got %q", err.Error())
	}
	if len(sink.waveforms) != 0 {
		t.Fatalf("expected no playback after rejection")
	}
}
