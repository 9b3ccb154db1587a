package events

const (
	// KindAssistantResponseFinal identifies the assistant's reply text.
	KindAssistantResponseFinal Kind = "assistant_response.final"
	// KindAssistantPlaybackStarted identifies playback start for the current reply.
	KindAssistantPlaybackStarted Kind = "assistant_playback.started"
	// KindAssistantPlaybackEnded identifies the playback completion milestone.
	KindAssistantPlaybackEnded Kind = "assistant_playback.ended"
)

// AssistantResponseFinal carries the assistant's reply text. UsedFallback is
// set when the text is canned, produced after the upstream model was
// exhausted.
type AssistantResponseFinal struct {
	Base
	Text         string
	UsedFallback bool
}

// NewAssistantResponseFinal creates an assistant response event.
func NewAssistantResponseFinal(text string, usedFallback bool) AssistantResponseFinal {
	return AssistantResponseFinal{Base: NewBase(KindAssistantResponseFinal), Text: text, UsedFallback: usedFallback}
}

// AssistantPlaybackStarted marks the start of assistant playback.
type AssistantPlaybackStarted struct{ Base }

// NewAssistantPlaybackStarted creates an assistant playback started event.
func NewAssistantPlaybackStarted() AssistantPlaybackStarted {
	return AssistantPlaybackStarted{Base: NewBase(KindAssistantPlaybackStarted)}
}

// AssistantPlaybackEnded marks the end of assistant playback. Interrupted is
// set when a newer waveform displaced this one before it drained.
type AssistantPlaybackEnded struct {
	Base
	Interrupted bool
}

// NewAssistantPlaybackEnded creates an assistant playback ended event.
func NewAssistantPlaybackEnded(interrupted bool) AssistantPlaybackEnded {
	return AssistantPlaybackEnded{Base: NewBase(KindAssistantPlaybackEnded), Interrupted: interrupted}
}
