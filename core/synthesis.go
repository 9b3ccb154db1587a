package orchestration

import (
	"context"
	"errors"
	"sync"

	"github.com/abyssvoice/abyss-core/core/events"
	"github.com/abyssvoice/abyss-core/core/faults"
	"github.com/abyssvoice/abyss-core/core/texttospeech"
)

// SynthesisCoordinator decides which synthesis channel speaks a reply.
// Constrained devices prefer the buffered channel, everything else the
// streaming one; a rejected request falls over to the other channel exactly
// once. Requests are serialized; the output facade displaces any in-flight
// playback, so a new reply always interrupts the previous one.
type SynthesisCoordinator struct {
	streaming   texttospeech.Client
	buffered    texttospeech.Client
	deviceClass DeviceClass
	emit        eventEmitter

	mu sync.Mutex
}

func NewSynthesisCoordinator(streaming, buffered texttospeech.Client, deviceClass DeviceClass, emit eventEmitter) *SynthesisCoordinator {
	if emit == nil {
		emit = noopEventEmitter
	}
	return &SynthesisCoordinator{
		streaming:   streaming,
		buffered:    buffered,
		deviceClass: deviceClass,
		emit:        emit,
	}
}

// Speak synthesizes and plays one reply. It blocks until the waveform is
// handed to the output device or both channels have rejected the request.
func (c *SynthesisCoordinator) Speak(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	primary, secondary := c.streaming, c.buffered
	if c.deviceClass == DeviceClassConstrained {
		primary, secondary = secondary, primary
	}
	if primary == nil {
		primary, secondary = secondary, nil
	}
	if primary == nil {
		return faults.New(faults.ProviderUnavailable, nil, "no synthesis channel configured")
	}

	opts = c.instrumentedOptions(opts)

	err := primary.Speak(ctx, text, opts...)
	if err == nil || secondary == nil || !worthFallingBack(err) {
		return err
	}

	logger.WarnContext(ctx, "synthesis channel rejected request, trying the other one", "error", err)
	return secondary.Speak(ctx, text, opts...)
}

// instrumentedOptions layers event emission over whatever playback callbacks
// the caller registered.
func (c *SynthesisCoordinator) instrumentedOptions(opts []texttospeech.SynthesisOption) []texttospeech.SynthesisOption {
	callerOptions := texttospeech.Apply(opts...)
	return append(opts,
		texttospeech.WithPlaybackStartedCallback(func() {
			c.emit(events.NewAssistantPlaybackStarted())
			callerOptions.PlaybackStartedCallback()
		}),
		texttospeech.WithPlaybackEndedCallback(func(interrupted bool) {
			c.emit(events.NewAssistantPlaybackEnded(interrupted))
			callerOptions.PlaybackEndedCallback(interrupted)
		}),
	)
}

// worthFallingBack excludes failures that must surface to the caller as they
// are. Parameter and rate-limit rejections happen before any network work and
// are never retried on either channel; playback errors mean synthesis already
// succeeded and the shared output device itself is broken.
func worthFallingBack(err error) bool {
	return !errors.Is(err, faults.ParameterInvalid) &&
		!errors.Is(err, faults.RateLimited) &&
		!errors.Is(err, faults.AudioPlaybackError)
}
