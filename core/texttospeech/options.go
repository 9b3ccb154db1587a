// Package texttospeech defines the contract shared by the synthesis
// channels. A client turns text into a playable waveform and hands it to the
// injected playback sink; playback callbacks fire on sink events, never at
// network completion.
package texttospeech

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/abyssvoice/abyss-core/core/audio"
	"github.com/abyssvoice/abyss-core/core/faults"
)

const (
	// MaxBufferedTextLength is the rune budget the buffered channel accepts
	// per request. Streaming requests are not length-bound.
	MaxBufferedTextLength = 1000

	// ParameterMin and ParameterMax bound speed, pitch and volume.
	ParameterMin = 0
	ParameterMax = 15

	defaultParameterValue = 5
)

// Client is implemented by both synthesis channels. Speak blocks until the
// waveform has been handed to the playback sink or the request is rejected.
type Client interface {
	Speak(ctx context.Context, text string, opts ...SynthesisOption) error
}

// PlaybackSink receives finished waveforms. The started callback fires when
// the device begins emitting samples, the ended callback when the waveform
// drains or is displaced by a newer one.
type PlaybackSink interface {
	Play(ctx context.Context, waveform audio.Waveform, onStarted func(), onEnded func(interrupted bool)) error
}

type SynthesisOptions struct {
	Speed  int
	Pitch  int
	Volume int
	Voice  string

	PlaybackStartedCallback func()
	PlaybackEndedCallback   func(interrupted bool)

	EncodingInfo audio.EncodingInfo
}

type SynthesisOption func(*SynthesisOptions)

func WithSpeed(speed int) SynthesisOption {
	return func(o *SynthesisOptions) { o.Speed = speed }
}

func WithPitch(pitch int) SynthesisOption {
	return func(o *SynthesisOptions) { o.Pitch = pitch }
}

func WithVolume(volume int) SynthesisOption {
	return func(o *SynthesisOptions) { o.Volume = volume }
}

func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) { o.Voice = voice }
}

func WithPlaybackStartedCallback(callback func()) SynthesisOption {
	return func(o *SynthesisOptions) { o.PlaybackStartedCallback = callback }
}

func WithPlaybackEndedCallback(callback func(interrupted bool)) SynthesisOption {
	return func(o *SynthesisOptions) { o.PlaybackEndedCallback = callback }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}

// Apply folds the option list into a fully defaulted options struct.
func Apply(opts ...SynthesisOption) SynthesisOptions {
	options := SynthesisOptions{
		Speed:  defaultParameterValue,
		Pitch:  defaultParameterValue,
		Volume: defaultParameterValue,

		PlaybackStartedCallback: func() {},
		PlaybackEndedCallback:   func(bool) {},

		EncodingInfo: audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// ValidateParameters rejects out-of-bounds speed, pitch or volume before any
// network traffic happens.
func (o SynthesisOptions) ValidateParameters() error {
	for _, parameter := range []struct {
		name  string
		value int
	}{
		{"speed", o.Speed},
		{"pitch", o.Pitch},
		{"volume", o.Volume},
	} {
		if parameter.value < ParameterMin || parameter.value > ParameterMax {
			return faults.Newf(faults.ParameterInvalid, nil,
				"%s must be between %d and %d, got %d",
				parameter.name, ParameterMin, ParameterMax, parameter.value)
		}
	}
	return nil
}

// ValidateBufferedText enforces the buffered channel's per-request length
// budget.
func ValidateBufferedText(text string) error {
	if text == "" {
		return faults.New(faults.ParameterInvalid, nil, "text must not be empty")
	}
	if length := utf8.RuneCountInString(text); length > MaxBufferedTextLength {
		return faults.New(faults.ParameterInvalid, nil,
			fmt.Sprintf("text must be at most %d characters, got %d", MaxBufferedTextLength, length))
	}
	return nil
}
