package orchestration

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abyssvoice/abyss-core/core/events"
	"github.com/abyssvoice/abyss-core/core/faults"
	"github.com/abyssvoice/abyss-core/core/speechtotext"
)

// DeviceClass selects provider and channel preferences. Constrained devices
// lean on the remote recognizer and the buffered synthesis channel.
type DeviceClass int

const (
	DeviceClassStandard DeviceClass = iota
	DeviceClassConstrained
)

type RecognitionProvider string

const (
	RecognitionProviderLocal  RecognitionProvider = "local"
	RecognitionProviderRemote RecognitionProvider = "remote"
)

type RecognitionState string

const (
	RecognitionStateIdle       RecognitionState = "idle"
	RecognitionStateListening  RecognitionState = "listening"
	RecognitionStateFinalizing RecognitionState = "finalizing"
	RecognitionStateEnded      RecognitionState = "ended"
	RecognitionStateError      RecognitionState = "error"
)

// RecognitionSession is a snapshot of one listening attempt. Terminal states
// are never left; a new Listen builds a fresh session.
type RecognitionSession struct {
	ID          string
	Provider    RecognitionProvider
	State       RecognitionState
	InterimText string
	FinalText   string
	StartedAt   time.Time
}

// RecognitionManager runs at most one listening session at a time and owns
// the provider choice. A failing provider is swapped for the other one at
// most once per session; the swap is silent and the session identity does not
// change.
type RecognitionManager struct {
	local       speechtotext.Provider
	remote      speechtotext.Provider
	deviceClass DeviceClass
	emit        eventEmitter

	mu sync.Mutex
	// generation invalidates callbacks from superseded sessions; every
	// terminal transition and every new Listen bumps it.
	generation int
	session    *RecognitionSession
	active     speechtotext.Provider
	fellBack   bool
}

func NewRecognitionManager(local, remote speechtotext.Provider, deviceClass DeviceClass, emit eventEmitter) *RecognitionManager {
	if emit == nil {
		emit = noopEventEmitter
	}
	return &RecognitionManager{
		local:       local,
		remote:      remote,
		deviceClass: deviceClass,
		emit:        emit,
	}
}

// Session returns a snapshot of the current or most recent session. The zero
// value is returned before the first Listen.
func (m *RecognitionManager) Session() RecognitionSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return RecognitionSession{State: RecognitionStateIdle}
	}
	return *m.session
}

// Listen starts a new session. It is a no-op while a session is active, so
// double-taps on a push-to-talk surface cannot stack sessions.
func (m *RecognitionManager) Listen(ctx context.Context) error {
	m.mu.Lock()
	if m.session != nil &&
		(m.session.State == RecognitionStateListening || m.session.State == RecognitionStateFinalizing) {
		m.mu.Unlock()
		return nil
	}

	m.generation++
	generation := m.generation
	m.fellBack = false

	provider, name := m.preferredProvider()
	if provider == nil {
		m.session = &RecognitionSession{
			ID:        uuid.NewString(),
			State:     RecognitionStateError,
			StartedAt: time.Now(),
		}
		m.mu.Unlock()
		err := faults.New(faults.ProviderUnavailable, nil, "no recognition provider is supported")
		m.emit(events.NewPipelineFailed(err))
		return err
	}

	m.session = &RecognitionSession{
		ID:        uuid.NewString(),
		Provider:  name,
		State:     RecognitionStateListening,
		StartedAt: time.Now(),
	}
	m.active = provider
	m.mu.Unlock()

	return m.startProvider(ctx, generation, provider)
}

// preferredProvider picks the session's first provider: remote for
// constrained devices, local otherwise, skipping unsupported ones. Skipping
// consumes the session's one fallback.
func (m *RecognitionManager) preferredProvider() (speechtotext.Provider, RecognitionProvider) {
	first, firstName := m.local, RecognitionProviderLocal
	second, secondName := m.remote, RecognitionProviderRemote
	if m.deviceClass == DeviceClassConstrained {
		first, firstName, second, secondName = second, secondName, first, firstName
	}

	if first != nil && first.Supported() {
		return first, firstName
	}
	m.fellBack = true
	if second != nil && second.Supported() {
		return second, secondName
	}
	return nil, ""
}

func (m *RecognitionManager) startProvider(ctx context.Context, generation int, provider speechtotext.Provider) error {
	err := provider.Start(ctx,
		speechtotext.WithInterimTranscriptionCallback(func(transcript string) {
			m.onInterim(generation, transcript)
		}),
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			m.finalize(generation, transcript)
		}),
		speechtotext.WithSpeechStartedCallback(func() {
			if m.isCurrent(generation) {
				m.emit(events.NewUserSpeechStarted())
			}
		}),
		speechtotext.WithSpeechEndedCallback(func() {
			if m.isCurrent(generation) {
				m.emit(events.NewUserSpeechEnded())
			}
		}),
		speechtotext.WithErrorCallback(func(err error) {
			m.onProviderError(ctx, generation, err)
		}),
	)
	if err != nil {
		if recovered := m.recoverFromFailure(ctx, generation, err); recovered != nil {
			m.fail(generation, recovered)
			return recovered
		}
	}
	return nil
}

func (m *RecognitionManager) isCurrent(generation int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return generation == m.generation
}

func (m *RecognitionManager) onInterim(generation int, transcript string) {
	m.mu.Lock()
	if generation != m.generation || m.session == nil || m.session.State != RecognitionStateListening {
		m.mu.Unlock()
		return
	}
	m.session.InterimText = transcript
	m.mu.Unlock()

	m.emit(events.NewUserTranscriptInterimUpdated(transcript))
}

func (m *RecognitionManager) onProviderError(ctx context.Context, generation int, err error) {
	if !m.isCurrent(generation) {
		return
	}
	if recovered := m.recoverFromFailure(ctx, generation, err); recovered != nil {
		m.fail(generation, recovered)
	}
}

// recoverFromFailure swaps in the other provider if the session has not fallen
// back yet; otherwise the error is terminal. The swap is silent, callers see
// no event for it.
func (m *RecognitionManager) recoverFromFailure(ctx context.Context, generation int, cause error) error {
	m.mu.Lock()
	if generation != m.generation || m.session == nil ||
		(m.session.State != RecognitionStateListening && m.session.State != RecognitionStateFinalizing) {
		m.mu.Unlock()
		return nil
	}
	if m.fellBack {
		m.mu.Unlock()
		return cause
	}

	m.fellBack = true
	other, otherName := m.remote, RecognitionProviderRemote
	if m.session.Provider == RecognitionProviderRemote {
		other, otherName = m.local, RecognitionProviderLocal
	}
	if other == nil || !other.Supported() {
		m.mu.Unlock()
		return cause
	}

	failed := m.active
	m.active = other
	m.session.Provider = otherName
	m.mu.Unlock()

	logger.WarnContext(ctx, "recognition provider failed, switching to the other one",
		"provider", otherName, "error", cause)

	if failed != nil {
		if err := failed.Stop(); err != nil {
			logger.WarnContext(ctx, "failed to stop failed provider", "error", err)
		}
	}

	if err := m.startProvider(ctx, generation, other); err != nil {
		return err
	}
	return nil
}

func (m *RecognitionManager) fail(generation int, err error) {
	m.mu.Lock()
	if generation != m.generation || m.session == nil {
		m.mu.Unlock()
		return
	}
	m.session.State = RecognitionStateError
	m.generation++
	m.mu.Unlock()

	m.emit(events.NewPipelineFailed(err))
}

// StopListening ends the session from the caller's side. The provider's Stop
// may still deliver the authoritative transcript; if nothing arrives the
// session ends as no-speech.
func (m *RecognitionManager) StopListening() error {
	m.mu.Lock()
	if m.session == nil || m.session.State != RecognitionStateListening {
		m.mu.Unlock()
		return nil
	}
	m.session.State = RecognitionStateFinalizing
	generation := m.generation
	provider := m.active
	m.mu.Unlock()

	if provider != nil {
		if err := provider.Stop(); err != nil {
			logger.Warn("failed to stop recognition provider", "error", err)
		}
	}

	m.finalize(generation, "")
	return nil
}

// finalize drives the terminal transition exactly once per session. An empty
// trimmed transcript ends the session as no-speech, which is an outcome, not
// an error.
func (m *RecognitionManager) finalize(generation int, transcript string) {
	m.mu.Lock()
	if generation != m.generation || m.session == nil ||
		(m.session.State != RecognitionStateListening && m.session.State != RecognitionStateFinalizing) {
		m.mu.Unlock()
		return
	}

	transcript = strings.TrimSpace(transcript)
	wasListening := m.session.State == RecognitionStateListening
	m.session.State = RecognitionStateEnded
	m.session.FinalText = transcript
	m.generation++
	provider := m.active
	m.mu.Unlock()

	if provider != nil && wasListening {
		if err := provider.Stop(); err != nil {
			logger.Warn("failed to stop recognition provider", "error", err)
		}
	}

	if transcript == "" {
		m.emit(events.NewUserNoSpeechCaptured())
		return
	}
	m.emit(events.NewUserTranscriptFinal(transcript))
}
