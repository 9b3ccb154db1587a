package events

import "time"

// Kind names an event type as a dot-separated namespace path, e.g.
// "user_input.transcript_final".
type Kind string

// Event is the contract every pipeline event satisfies.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base carries the kind and emission time shared by all events. Concrete
// events embed it.
type Base struct {
	kind      Kind
	timestamp time.Time
}

// NewBase stamps a new event with the current time.
func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
