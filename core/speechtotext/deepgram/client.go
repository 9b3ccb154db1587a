// Package deepgram implements the local platform recognition provider: a
// continuous, interim-enabled live transcription session over the vendor
// websocket, fed directly from the injected microphone capture client.
package deepgram

import (
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abyssvoice/abyss-core/core/speechtotext"
)

const apiKeyEnv = "DEEPGRAM_API_KEY"

type TranscriptionClient struct {
	capture speechtotext.CaptureClient

	conn   *websocket.Conn
	connMu sync.Mutex

	// continueRequested keeps the session alive across engine-side stream
	// closures. It is cleared by Stop so the end-of-segment transition is the
	// single source of truth for restarts.
	continueRequested bool
	stateMu           sync.Mutex

	accumulatedTranscript string
	unendedSegment        bool

	lastMsgTs time.Time

	options speechtotext.TranscriptionOptions
}

func NewTranscriptionClient(capture speechtotext.CaptureClient) *TranscriptionClient {
	return &TranscriptionClient{capture: capture}
}

// Supported reports whether the platform engine can run at all: it needs the
// vendor credential and a microphone source.
func (s *TranscriptionClient) Supported() bool {
	_, ok := os.LookupEnv(apiKeyEnv)
	return ok && s.capture != nil
}

func (s *TranscriptionClient) wantsContinue() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.continueRequested
}

func (s *TranscriptionClient) setContinue(v bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.continueRequested = v
}
