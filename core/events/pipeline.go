package events

const (
	// KindPipelineFailed identifies a terminal stage failure.
	KindPipelineFailed Kind = "pipeline.failed"
)

// PipelineFailed carries a classified error from a stage that could not
// recover. Fallbacks that succeeded do not produce this event.
type PipelineFailed struct {
	Base
	Err error
}

// NewPipelineFailed creates a pipeline failure event.
func NewPipelineFailed(err error) PipelineFailed {
	return PipelineFailed{Base: NewBase(KindPipelineFailed), Err: err}
}
