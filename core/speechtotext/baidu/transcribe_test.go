package baidu

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/abyssvoice/abyss-core/core/audio"
	"github.com/abyssvoice/abyss-core/core/faults"
	"github.com/abyssvoice/abyss-core/core/speechtotext"
)

type captureStub struct {
	onAudio func(chunk []byte)
	stopped atomic.Bool
}

func (c *captureStub) StartCapture(_ context.Context, onAudio func(chunk []byte)) error {
	c.onAudio = onAudio
	return nil
}

func (c *captureStub) StopCapture() error {
	c.stopped.Store(true)
	return nil
}

// tinyEncoding keeps chunk boundaries small enough to hit from a test.
func tinyEncoding() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: 8, Format: audio.FormatLinear16}
}

func TestChunkedRecognitionDeliversInterimAndFinalTranscripts(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("unexpected request body: %v", err)
		}
		if _, _, err := r.FormFile("audio"); err != nil {
			t.Errorf("missing audio part: %v", err)
		}
		isFinal := r.FormValue("isFinal")
		if n < 3 && isFinal != "false" {
			t.Errorf("expected intermediate chunk, got isFinal=%q", isFinal)
		}
		if n == 3 && isFinal != "true" {
			t.Errorf("expected final chunk, got isFinal=%q", isFinal)
		}
		fmt.Fprintf(w, `{"err_no":0,"result":["transcript after %d"]}`, n)
	}))
	defer server.Close()

	capture := &captureStub{}
	client := NewTranscriptionClient(capture, server.URL)

	var interims []string
	var finals []string
	endCalls := 0

	err := client.Start(context.Background(),
		speechtotext.WithEncodingInfo(tinyEncoding()),
		speechtotext.WithInterimTranscriptionCallback(func(transcript string) {
			interims = append(interims, transcript)
		}),
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			finals = append(finals, transcript)
		}),
		speechtotext.WithSpeechEndedCallback(func() { endCalls++ }),
	)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	chunkSize := tinyEncoding().BytesPerSecond()
	capture.onAudio(make([]byte, chunkSize))
	capture.onAudio(make([]byte, chunkSize))
	capture.onAudio(make([]byte, chunkSize/2))

	if err := client.Stop(); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	if !capture.stopped.Load() {
		t.Fatalf("expected capture to be stopped")
	}
	if got := requests.Load(); got != 3 {
		t.Fatalf("expected 3 chunk uploads, got %d", got)
	}
	if len(interims) != 2 {
		t.Fatalf("expected 2 interim transcripts, got %d (%v)", len(interims), interims)
	}
	if len(finals) != 1 || finals[0] != "transcript after 3" {
		t.Fatalf("expected the final chunk's transcript to win, got %v", finals)
	}
	if endCalls != 1 {
		t.Fatalf("expected one speech-end callback, got %d", endCalls)
	}
}

func TestChunkedRecognitionHaltsAfterFirstUploadFailure(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	capture := &captureStub{}
	client := NewTranscriptionClient(capture, server.URL)

	var errs []error
	var finals []string

	err := client.Start(context.Background(),
		speechtotext.WithEncodingInfo(tinyEncoding()),
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			finals = append(finals, transcript)
		}),
		speechtotext.WithErrorCallback(func(err error) { errs = append(errs, err) }),
	)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	chunkSize := tinyEncoding().BytesPerSecond()
	capture.onAudio(make([]byte, chunkSize))
	if err := client.Stop(); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	if len(errs) != 1 {
		t.Fatalf("expected a single error for the segment, got %d (%v)", len(errs), errs)
	}
	if !errors.Is(errs[0], faults.ProviderUnavailable) {
		t.Fatalf("expected provider-unavailable classification, got %v", errs[0])
	}
	if len(finals) != 0 {
		t.Fatalf("expected no authoritative transcript after a failed chunk, got %v", finals)
	}
}

func TestChunkedRecognitionReportsDroppedAudioAsTheSegmentError(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, `{"err_no":0,"result":["partial"]}`)
	}))
	defer server.Close()

	capture := &captureStub{}
	client := NewTranscriptionClient(capture, server.URL)

	var errs []error
	var finals []string
	err := client.Start(context.Background(),
		speechtotext.WithEncodingInfo(tinyEncoding()),
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			finals = append(finals, transcript)
		}),
		speechtotext.WithErrorCallback(func(err error) { errs = append(errs, err) }),
	)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	// The endpoint is stalled, so the upload backlog overflows.
	chunkSize := tinyEncoding().BytesPerSecond()
	for i := 0; i < 12; i++ {
		capture.onAudio(make([]byte, chunkSize))
	}
	close(release)

	if err := client.Stop(); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	if len(errs) != 1 {
		t.Fatalf("expected a single error for the dropped audio, got %d (%v)", len(errs), errs)
	}
	if !errors.Is(errs[0], faults.ProviderUnavailable) {
		t.Fatalf("expected provider-unavailable classification, got %v", errs[0])
	}
	if len(finals) != 0 {
		t.Fatalf("expected no authoritative transcript after dropped audio, got %v", finals)
	}
}

func TestChunkedRecognitionSurfacesVendorRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"err_no":3301,"err_msg":"audio quality too low"}`)
	}))
	defer server.Close()

	capture := &captureStub{}
	client := NewTranscriptionClient(capture, server.URL)

	var errs []error
	err := client.Start(context.Background(),
		speechtotext.WithEncodingInfo(tinyEncoding()),
		speechtotext.WithErrorCallback(func(err error) { errs = append(errs, err) }),
	)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	capture.onAudio(make([]byte, tinyEncoding().BytesPerSecond()))
	if err := client.Stop(); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	if len(errs) != 1 {
		t.Fatalf("expected one error, got %d (%v)", len(errs), errs)
	}
	if !errors.Is(errs[0], faults.ProviderUnavailable) {
		t.Fatalf("expected provider-unavailable classification, got %v", errs[0])
	}
}

func TestSupportedRequiresCaptureAndEndpoint(t *testing.T) {
	if NewTranscriptionClient(nil, "http://localhost").Supported() {
		t.Fatalf("expected unsupported without a capture client")
	}
	if NewTranscriptionClient(&captureStub{}, "").Supported() {
		t.Fatalf("expected unsupported without an endpoint")
	}
	if !NewTranscriptionClient(&captureStub{}, "http://localhost").Supported() {
		t.Fatalf("expected supported with capture and endpoint")
	}
}
