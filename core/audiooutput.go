package orchestration

import (
	"context"
	"sync"

	"github.com/abyssvoice/abyss-core/core/audio"
	"github.com/abyssvoice/abyss-core/core/faults"
)

// AudioOutputClient is the playback device contract. Any
// SendAudio/ClearBuffer/Mark-shaped client can be injected;
// miniaudio.Client is the stock implementation.
type AudioOutputClient interface {
	SendAudio(chunk []byte) error
	ClearBuffer()
	Mark(mark string, callback func(string)) error
	EncodingInfo() audio.EncodingInfo
}

// AudioOutput is the single-owner arena for the playback device. At most one
// waveform owns the device at a time; a new Play displaces the previous owner
// first, and the displaced owner's end callback always fires before the new
// owner's start callback.
type AudioOutput struct {
	client AudioOutputClient

	mu      sync.Mutex
	current *playbackHolder
}

type playbackHolder struct {
	onEnded func(interrupted bool)
	ended   bool
}

func NewAudioOutput(client AudioOutputClient) *AudioOutput {
	return &AudioOutput{client: client}
}

const drainMarkName = "waveform-drained"

// Play takes ownership of the device and starts the waveform. It satisfies
// texttospeech.PlaybackSink. The ended callback fires exactly once, either
// when the waveform drains or when a newer waveform displaces it.
func (o *AudioOutput) Play(ctx context.Context, waveform audio.Waveform, onStarted func(), onEnded func(interrupted bool)) error {
	if o.client == nil {
		return faults.New(faults.AudioPlaybackError, nil, "no playback device configured")
	}
	if waveform.IsEmpty() {
		return faults.New(faults.AudioPlaybackError, nil, "refusing to play an empty waveform")
	}

	if deviceRate := o.client.EncodingInfo().SampleRate; deviceRate != waveform.SampleRate {
		logger.WarnContext(ctx, "waveform sample rate does not match output device",
			"waveform_rate", waveform.SampleRate, "device_rate", deviceRate)
	}

	displaced := o.takeOwnership(onEnded)
	if displaced != nil {
		o.client.ClearBuffer()
		displaced(true)
	}

	holder := o.currentHolder()
	if err := o.client.SendAudio(audio.EncodeS16LE(waveform.Samples)); err != nil {
		o.release(holder)
		return faults.New(faults.AudioPlaybackError, err, "failed to hand waveform to device")
	}
	onStarted()

	if err := o.client.Mark(drainMarkName, func(string) {
		if o.release(holder) {
			onEnded(false)
		}
	}); err != nil {
		logger.WarnContext(ctx, "failed to mark waveform end", "error", err)
	}
	return nil
}

// Stop displaces the current owner, if any, without installing a new one.
func (o *AudioOutput) Stop() {
	o.mu.Lock()
	var displaced func(interrupted bool)
	if o.current != nil && !o.current.ended {
		o.current.ended = true
		displaced = o.current.onEnded
	}
	o.current = nil
	o.mu.Unlock()

	if displaced != nil {
		o.client.ClearBuffer()
		displaced(true)
	}
}

// takeOwnership installs a new holder and returns the displaced owner's end
// callback when there was a live one.
func (o *AudioOutput) takeOwnership(onEnded func(interrupted bool)) func(interrupted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var displaced func(interrupted bool)
	if o.current != nil && !o.current.ended {
		o.current.ended = true
		displaced = o.current.onEnded
	}
	o.current = &playbackHolder{onEnded: onEnded}
	return displaced
}

func (o *AudioOutput) currentHolder() *playbackHolder {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// release marks the holder ended if it is still the live owner. It reports
// whether the caller is responsible for the end callback.
func (o *AudioOutput) release(holder *playbackHolder) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != holder || holder == nil || holder.ended {
		return false
	}
	holder.ended = true
	o.current = nil
	return true
}
