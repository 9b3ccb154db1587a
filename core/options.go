package orchestration

import (
	"github.com/abyssvoice/abyss-core/core/completions"
	"github.com/abyssvoice/abyss-core/core/speechtotext"
	"github.com/abyssvoice/abyss-core/core/texttospeech"
)

type OrchestratorOption func(*Orchestrator)

// WithLocalRecognizer wires the on-device recognition provider.
func WithLocalRecognizer(provider speechtotext.Provider) OrchestratorOption {
	return func(o *Orchestrator) { o.localRecognizer = provider }
}

// WithRemoteRecognizer wires the chunk-upload recognition provider.
func WithRemoteRecognizer(provider speechtotext.Provider) OrchestratorOption {
	return func(o *Orchestrator) { o.remoteRecognizer = provider }
}

// WithStreamingSynthesis wires the websocket synthesis channel.
func WithStreamingSynthesis(client texttospeech.Client) OrchestratorOption {
	return func(o *Orchestrator) { o.streamingSynthesis = client }
}

// WithBufferedSynthesis wires the one-shot HTTP synthesis channel.
func WithBufferedSynthesis(client texttospeech.Client) OrchestratorOption {
	return func(o *Orchestrator) { o.bufferedSynthesis = client }
}

// WithCompletionClient wires the upstream model client used by the gateway.
func WithCompletionClient(client completions.Client) OrchestratorOption {
	return func(o *Orchestrator) { o.completionClient = client }
}

// WithAudioOutputClient wires the playback device behind the single-owner
// output facade.
func WithAudioOutputClient(client AudioOutputClient) OrchestratorOption {
	return func(o *Orchestrator) { o.audioOutputClient = client }
}

// WithDeviceClass declares the host device's capability class, which drives
// provider and synthesis channel preference.
func WithDeviceClass(deviceClass DeviceClass) OrchestratorOption {
	return func(o *Orchestrator) { o.deviceClass = deviceClass }
}

// WithSystemInstructions sets the instructions prepended to every exchange.
func WithSystemInstructions(instructions string) OrchestratorOption {
	return func(o *Orchestrator) { o.systemInstructions = instructions }
}

// WithCannedResponses replaces the default canned reply set used when the
// upstream model is exhausted.
func WithCannedResponses(responses ...string) OrchestratorOption {
	return func(o *Orchestrator) {
		if len(responses) > 0 {
			o.cannedResponses = responses
		}
	}
}

type OrchestrateOptions struct {
	onInterimTranscription func(transcript string)
	onTranscription        func(transcript string)
	onNoSpeechCaptured     func()
	onSpeakingStateChanged func(isSpeaking bool)
	onResponse             func(response string, usedFallback bool)
	onPlaybackStarted      func()
	onPlaybackEnded        func(interrupted bool)
	onError                func(err error)
}

type OrchestrateOption func(*OrchestrateOptions)

// WithInterimTranscriptionCallback sets the callback for mutable interim
// transcript snapshots. Each call replaces the previous snapshot.
func WithInterimTranscriptionCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onInterimTranscription = callback }
}

// WithTranscriptionCallback sets the callback for the authoritative final
// transcript of an utterance.
func WithTranscriptionCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onTranscription = callback }
}

// WithNoSpeechCapturedCallback sets the callback for sessions that end
// without usable speech.
func WithNoSpeechCapturedCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onNoSpeechCaptured = callback }
}

// WithSpeakingStateChangedCallback sets the callback for user speech activity
// transitions.
func WithSpeakingStateChangedCallback(callback func(isSpeaking bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onSpeakingStateChanged = callback }
}

// WithResponseCallback sets the callback for assistant replies. usedFallback
// marks canned text produced after upstream exhaustion.
func WithResponseCallback(callback func(response string, usedFallback bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onResponse = callback }
}

// WithPlaybackStartedCallback sets the callback for playback start.
func WithPlaybackStartedCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onPlaybackStarted = callback }
}

// WithPlaybackEndedCallback sets the callback for playback end; interrupted
// is set when a newer reply displaced the playing one.
func WithPlaybackEndedCallback(callback func(interrupted bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onPlaybackEnded = callback }
}

// WithErrorCallback sets the callback for terminal pipeline failures.
func WithErrorCallback(callback func(err error)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onError = callback }
}
