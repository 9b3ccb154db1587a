package orchestration

import (
	"context"
	"errors"
	"testing"

	"github.com/abyssvoice/abyss-core/core/events"
	"github.com/abyssvoice/abyss-core/core/faults"
	"github.com/abyssvoice/abyss-core/core/speechtotext"
)

type providerStub struct {
	supported bool
	startErr  error

	starts  int
	stops   int
	options speechtotext.TranscriptionOptions
}

func (p *providerStub) Start(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	p.starts++
	p.options = speechtotext.Apply(opts...)
	return p.startErr
}

func (p *providerStub) Stop() error {
	p.stops++
	return nil
}

func (p *providerStub) Supported() bool { return p.supported }

type eventRecorder struct {
	events []events.Event
}

func (r *eventRecorder) emit(event events.Event) {
	r.events = append(r.events, event)
}

func (r *eventRecorder) kinds() []events.Kind {
	kinds := make([]events.Kind, 0, len(r.events))
	for _, event := range r.events {
		kinds = append(kinds, event.Kind())
	}
	return kinds
}

func TestListenPrefersLocalProviderOnStandardDevices(t *testing.T) {
	local := &providerStub{supported: true}
	remote := &providerStub{supported: true}
	manager := NewRecognitionManager(local, remote, DeviceClassStandard, nil)

	if err := manager.Listen(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if local.starts != 1 || remote.starts != 0 {
		t.Fatalf("expected the local provider to start, got local=%d remote=%d", local.starts, remote.starts)
	}
	if session := manager.Session(); session.Provider != RecognitionProviderLocal || session.State != RecognitionStateListening {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestListenPrefersRemoteProviderOnConstrainedDevices(t *testing.T) {
	local := &providerStub{supported: true}
	remote := &providerStub{supported: true}
	manager := NewRecognitionManager(local, remote, DeviceClassConstrained, nil)

	if err := manager.Listen(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remote.starts != 1 || local.starts != 0 {
		t.Fatalf("expected the remote provider to start, got local=%d remote=%d", local.starts, remote.starts)
	}
}

func TestListenIsNoOpWhileSessionIsActive(t *testing.T) {
	local := &providerStub{supported: true}
	manager := NewRecognitionManager(local, nil, DeviceClassStandard, nil)

	manager.Listen(context.Background())
	firstID := manager.Session().ID
	if err := manager.Listen(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if local.starts != 1 {
		t.Fatalf("expected a single provider start, got %d", local.starts)
	}
	if manager.Session().ID != firstID {
		t.Fatalf("expected the session to survive the second Listen")
	}
}

func TestInterimUpdatesOverwriteTheSnapshot(t *testing.T) {
	recorder := &eventRecorder{}
	local := &providerStub{supported: true}
	manager := NewRecognitionManager(local, nil, DeviceClassStandard, recorder.emit)

	manager.Listen(context.Background())
	local.options.InterimTranscriptionCallback("turn on")
	local.options.InterimTranscriptionCallback("turn on the lights")

	if got := manager.Session().InterimText; got != "turn on the lights" {
		t.Fatalf("expected the last interim snapshot, got %q", got)
	}
	if len(recorder.events) != 2 {
		t.Fatalf("expected two interim events, got %v", recorder.kinds())
	}
}

func TestFinalTranscriptEndsTheSession(t *testing.T) {
	recorder := &eventRecorder{}
	local := &providerStub{supported: true}
	manager := NewRecognitionManager(local, nil, DeviceClassStandard, recorder.emit)

	manager.Listen(context.Background())
	local.options.TranscriptionCallback(" turn on the lights ")

	session := manager.Session()
	if session.State != RecognitionStateEnded {
		t.Fatalf("expected session ended, got %q", session.State)
	}
	if session.FinalText != "turn on the lights" {
		t.Fatalf("expected trimmed final text, got %q", session.FinalText)
	}
	if local.stops != 1 {
		t.Fatalf("expected the provider to be stopped, got %d stops", local.stops)
	}

	finals := 0
	for _, event := range recorder.events {
		if final, ok := event.(events.UserTranscriptFinal); ok {
			finals++
			if final.Transcript != "turn on the lights" {
				t.Fatalf("unexpected final transcript %q", final.Transcript)
			}
		}
	}
	if finals != 1 {
		t.Fatalf("expected exactly one final transcript event, got %d", finals)
	}
}

func TestEmptyFinalTranscriptEndsAsNoSpeech(t *testing.T) {
	recorder := &eventRecorder{}
	local := &providerStub{supported: true}
	manager := NewRecognitionManager(local, nil, DeviceClassStandard, recorder.emit)

	manager.Listen(context.Background())
	local.options.TranscriptionCallback("   ")

	if got := manager.Session().State; got != RecognitionStateEnded {
		t.Fatalf("expected session ended, got %q", got)
	}

	sawNoSpeech := false
	for _, event := range recorder.events {
		switch event.(type) {
		case events.UserNoSpeechCaptured:
			sawNoSpeech = true
		case events.UserTranscriptFinal:
			t.Fatalf("empty transcript must not produce a final transcript event")
		case events.PipelineFailed:
			t.Fatalf("no speech is not a failure")
		}
	}
	if !sawNoSpeech {
		t.Fatalf("expected a no-speech event, got %v", recorder.kinds())
	}
}

func TestStopListeningWithoutTranscriptEndsAsNoSpeech(t *testing.T) {
	recorder := &eventRecorder{}
	local := &providerStub{supported: true}
	manager := NewRecognitionManager(local, nil, DeviceClassStandard, recorder.emit)

	manager.Listen(context.Background())
	if err := manager.StopListening(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := manager.Session().State; got != RecognitionStateEnded {
		t.Fatalf("expected session ended, got %q", got)
	}
	if local.stops == 0 {
		t.Fatalf("expected the provider to be stopped")
	}
	if len(recorder.events) != 1 {
		t.Fatalf("expected a single terminal event, got %v", recorder.kinds())
	}
	if _, ok := recorder.events[0].(events.UserNoSpeechCaptured); !ok {
		t.Fatalf("expected a no-speech event, got %v", recorder.kinds())
	}
}

func TestProviderFailureFallsBackSilentlyAtMostOnce(t *testing.T) {
	recorder := &eventRecorder{}
	local := &providerStub{supported: true}
	remote := &providerStub{supported: true}
	manager := NewRecognitionManager(local, remote, DeviceClassConstrained, recorder.emit)

	manager.Listen(context.Background())
	remote.options.ErrorCallback(faults.New(faults.ProviderUnavailable, nil, "stream dropped"))

	if local.starts != 1 {
		t.Fatalf("expected fallback to start the local provider, got %d starts", local.starts)
	}
	if remote.stops != 1 {
		t.Fatalf("expected the failed provider to be stopped, got %d stops", remote.stops)
	}
	session := manager.Session()
	if session.Provider != RecognitionProviderLocal || session.State != RecognitionStateListening {
		t.Fatalf("expected a listening session on the local provider, got %+v", session)
	}
	for _, event := range recorder.events {
		if _, ok := event.(events.PipelineFailed); ok {
			t.Fatalf("the first fallback must be silent, got %v", recorder.kinds())
		}
	}

	// The second failure has nowhere left to go.
	local.options.ErrorCallback(faults.New(faults.ProviderUnavailable, nil, "device gone"))
	if got := manager.Session().State; got != RecognitionStateError {
		t.Fatalf("expected error state after double failure, got %q", got)
	}
	failures := 0
	for _, event := range recorder.events {
		if _, ok := event.(events.PipelineFailed); ok {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly one failure event, got %d", failures)
	}
}

func TestStartFailureFallsBackToTheOtherProvider(t *testing.T) {
	local := &providerStub{supported: true}
	remote := &providerStub{supported: true, startErr: errors.New("endpoint down")}
	manager := NewRecognitionManager(local, remote, DeviceClassConstrained, nil)

	if err := manager.Listen(context.Background()); err != nil {
		t.Fatalf("expected a silent fallback, got %v", err)
	}
	if local.starts != 1 {
		t.Fatalf("expected the local provider to take over, got %d starts", local.starts)
	}
	if got := manager.Session().Provider; got != RecognitionProviderLocal {
		t.Fatalf("expected the session to record the local provider, got %q", got)
	}
}

func TestUnsupportedPreferredProviderConsumesTheFallback(t *testing.T) {
	recorder := &eventRecorder{}
	local := &providerStub{supported: false}
	remote := &providerStub{supported: true}
	manager := NewRecognitionManager(local, remote, DeviceClassStandard, recorder.emit)

	if err := manager.Listen(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remote.starts != 1 {
		t.Fatalf("expected the remote provider to start, got %d", remote.starts)
	}

	remote.options.ErrorCallback(faults.New(faults.ProviderUnavailable, nil, "stream dropped"))
	if got := manager.Session().State; got != RecognitionStateError {
		t.Fatalf("expected error state, the session's one fallback was already spent; got %q", got)
	}
	if local.starts != 0 {
		t.Fatalf("the unsupported provider must never be started")
	}
}

func TestListenFailsWhenNoProviderIsSupported(t *testing.T) {
	recorder := &eventRecorder{}
	manager := NewRecognitionManager(&providerStub{}, &providerStub{}, DeviceClassStandard, recorder.emit)

	err := manager.Listen(context.Background())
	if !errors.Is(err, faults.ProviderUnavailable) {
		t.Fatalf("expected provider-unavailable classification, got %v", err)
	}
	if got := manager.Session().State; got != RecognitionStateError {
		t.Fatalf("expected error state, got %q", got)
	}
}

func TestStaleSessionEventsAreDiscarded(t *testing.T) {
	recorder := &eventRecorder{}
	local := &providerStub{supported: true}
	manager := NewRecognitionManager(local, nil, DeviceClassStandard, recorder.emit)

	manager.Listen(context.Background())
	staleOptions := local.options
	local.options.TranscriptionCallback("first utterance")

	manager.Listen(context.Background())
	eventsBefore := len(recorder.events)

	staleOptions.InterimTranscriptionCallback("ghost")
	staleOptions.TranscriptionCallback("ghost utterance")

	if len(recorder.events) != eventsBefore {
		t.Fatalf("expected stale callbacks to be discarded, got %v", recorder.kinds())
	}
	session := manager.Session()
	if session.State != RecognitionStateListening || session.InterimText != "" {
		t.Fatalf("expected the fresh session untouched, got %+v", session)
	}
}
