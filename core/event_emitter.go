package orchestration

import "github.com/abyssvoice/abyss-core/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

func newCallbackEventEmitter(opts OrchestrateOptions) eventEmitter {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.UserSpeechStarted:
			if opts.onSpeakingStateChanged != nil {
				opts.onSpeakingStateChanged(true)
			}
		case events.UserSpeechEnded:
			if opts.onSpeakingStateChanged != nil {
				opts.onSpeakingStateChanged(false)
			}
		case events.UserTranscriptInterimUpdated:
			if opts.onInterimTranscription != nil {
				opts.onInterimTranscription(typedEvent.Transcript)
			}
		case events.UserTranscriptFinal:
			if opts.onTranscription != nil {
				opts.onTranscription(typedEvent.Transcript)
			}
		case events.UserNoSpeechCaptured:
			if opts.onNoSpeechCaptured != nil {
				opts.onNoSpeechCaptured()
			}
		case events.AssistantResponseFinal:
			if opts.onResponse != nil {
				opts.onResponse(typedEvent.Text, typedEvent.UsedFallback)
			}
		case events.AssistantPlaybackStarted:
			if opts.onPlaybackStarted != nil {
				opts.onPlaybackStarted()
			}
		case events.AssistantPlaybackEnded:
			if opts.onPlaybackEnded != nil {
				opts.onPlaybackEnded(typedEvent.Interrupted)
			}
		case events.PipelineFailed:
			if opts.onError != nil {
				opts.onError(typedEvent.Err)
			}
		}
	}
}
