// Package speechtotext defines the contract shared by recognition providers.
// A provider captures microphone audio, emits interim transcripts while the
// user is speaking, and delivers one authoritative final transcript when the
// segment ends.
package speechtotext

import (
	"context"

	"github.com/abyssvoice/abyss-core/core/audio"
)

// Provider is implemented by every recognition adapter. Start begins capture
// and transcript delivery; Stop finalizes the in-flight segment and releases
// the microphone synchronously. Supported reports whether the runtime can
// host this provider at all (credentials present, device usable).
type Provider interface {
	Start(ctx context.Context, opts ...TranscriptionOption) error
	Stop() error
	Supported() bool
}

// CaptureClient is the microphone source injected into providers.
// StartCapture returns once capture is running; the callback then receives
// raw PCM chunks until StopCapture.
type CaptureClient interface {
	StartCapture(ctx context.Context, onAudio func(chunk []byte)) error
	StopCapture() error
}

type TranscriptionOptions struct {
	InterimTranscriptionCallback func(transcript string)
	TranscriptionCallback        func(transcript string)

	SpeechStartedCallback func()
	SpeechEndedCallback   func()
	ErrorCallback         func(err error)

	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func WithInterimTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.InterimTranscriptionCallback = callback
	}
}

func WithTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.TranscriptionCallback = callback
	}
}

func WithSpeechStartedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechStartedCallback = callback
	}
}

func WithSpeechEndedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechEndedCallback = callback
	}
}

func WithErrorCallback(callback func(err error)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.ErrorCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}

// Apply folds the option list into a fully defaulted options struct so
// providers never have to nil-check callbacks.
func Apply(opts ...TranscriptionOption) TranscriptionOptions {
	options := TranscriptionOptions{
		InterimTranscriptionCallback: func(string) {},
		TranscriptionCallback:        func(string) {},
		SpeechStartedCallback:        func() {},
		SpeechEndedCallback:          func() {},
		ErrorCallback:                func(error) {},
		EncodingInfo:                 audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
