package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"

	"github.com/abyssvoice/abyss-core/core/audio"
	"github.com/abyssvoice/abyss-core/core/faults"
	"github.com/abyssvoice/abyss-core/core/speechtotext"
)

func (s *TranscriptionClient) Start(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	s.options = speechtotext.Apply(opts...)

	conn, err := connectWebsocket(connectionOptions{
		sampleRate: s.options.EncodingInfo.SampleRate,
		encoding:   s.options.EncodingInfo.Format.Name(),
	})
	if err != nil {
		return faults.New(faults.ProviderUnavailable, err, "failed to open recognition stream")
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	s.setContinue(true)
	s.accumulatedTranscript = ""

	if s.capture != nil {
		if err := s.capture.StartCapture(ctx, func(chunk []byte) {
			if err := s.SendAudio(chunk); err != nil {
				logger.WarnContext(ctx, "failed to forward capture chunk", "error", err)
			}
		}); err != nil {
			s.setContinue(false)
			conn.Close()
			return faults.New(faults.ProviderUnavailable, err, "failed to start microphone capture")
		}
	}

	go s.readAndProcessMessages(ctx, conn)

	return nil
}

type connectionOptions struct {
	sampleRate int
	encoding   string
}

func connectWebsocket(options connectionOptions) (*websocket.Conn, error) {
	apiKey, ok := os.LookupEnv(apiKeyEnv)
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	listenUrl, _ := url.Parse("wss://api.deepgram.com/v1/listen")
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", options.encoding)
	queryParams.Set("sample_rate", strconv.Itoa(options.sampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", "nova-3")
	queryParams.Set("smart_format", "true")
	queryParams.Set("interim_results", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("endpointing", "300")
	queryParams.Set("vad_events", "true")

	listenUrl.RawQuery = queryParams.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(listenUrl.String(),
		http.Header{"Authorization": {"Token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (s *TranscriptionClient) SendAudio(chunk []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("recognition stream not open")
	}

	s.lastMsgTs = time.Now()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

// Stop finalizes the in-flight segment and releases the microphone. The
// engine's residual messages after close are read and discarded by the read
// loop, which exits once the server closes its side.
func (s *TranscriptionClient) Stop() error {
	s.setContinue(false)

	if s.capture != nil {
		if err := s.capture.StopCapture(); err != nil {
			log.Println("Failed to stop capture device", "error", err)
		}
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn != nil {
		if err := s.conn.WriteJSON(struct {
			Type string `json:"type"`
		}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
			return fmt.Errorf("failed to close recognition stream: %w", err)
		}
	}
	return nil
}

func (s *TranscriptionClient) readAndProcessMessages(ctx context.Context, conn *websocket.Conn) {
	silenceCtx, silenceCancel := context.WithCancel(ctx)
	defer silenceCancel()

	go s.generateSilence(silenceCtx, s.options.EncodingInfo)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if err.Error() != "websocket: close 1000 (normal)" {
				log.Println("Failed to read deepgram websocket message", "error", err)
			}

			s.connMu.Lock()
			s.conn = nil
			s.connMu.Unlock()
			conn.Close()

			// The engine ended the stream while the session still wants to
			// listen; redial instead of surfacing an error. "No speech yet"
			// closures land here too and are deliberately not errors.
			if s.wantsContinue() {
				s.restart(ctx)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			s.processMessage(ctx, msg)
		}
	}
}

func (s *TranscriptionClient) restart(ctx context.Context) {
	conn, err := connectWebsocket(connectionOptions{
		sampleRate: s.options.EncodingInfo.SampleRate,
		encoding:   s.options.EncodingInfo.Format.Name(),
	})
	if err != nil {
		s.setContinue(false)
		s.options.ErrorCallback(faults.New(faults.ProviderUnavailable, err,
			"failed to restart recognition stream"))
		return
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	go s.readAndProcessMessages(ctx, conn)
}

func (s *TranscriptionClient) processMessage(_ context.Context, msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		log.Println("Failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			log.Println("Failed to unmarshal deepgram message", err)
			return
		}
		if msgResp.IsFinal {
			if len(msgResp.Channel.Alternatives) > 0 {
				transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
				if len(transcript) > 0 {
					s.accumulatedTranscript = strings.TrimSpace(s.accumulatedTranscript + " " + transcript)
				}
			}
			if msgResp.SpeechFinal {
				s.onSpeechEnded()
			}
		} else if len(msgResp.Channel.Alternatives) > 0 {
			transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
			if len(transcript) > 0 {
				interim := strings.TrimSpace(s.accumulatedTranscript + " " + transcript)
				s.options.InterimTranscriptionCallback(interim)
			}
		}

	case api.TypeUtteranceEndResponse:
		var msgResp api.UtteranceEndResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			log.Println("Failed to unmarshal deepgram message", err)
			return
		}

		if s.unendedSegment {
			s.onSpeechEnded()
		}

	case api.TypeSpeechStartedResponse:
		var msgResp api.SpeechStartedResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			log.Println("Failed to unmarshal deepgram message", err)
			return
		}

		s.unendedSegment = true
		s.options.SpeechStartedCallback()
	}
}

func (s *TranscriptionClient) onSpeechEnded() {
	s.unendedSegment = false
	fullTranscript := strings.TrimSpace(s.accumulatedTranscript)
	s.accumulatedTranscript = ""
	s.options.TranscriptionCallback(fullTranscript)
	s.options.SpeechEndedCallback()
}

func (s *TranscriptionClient) sendKeepAlive() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return
	}
	if err := s.conn.WriteJSON(
		struct {
			Type string `json:"type"`
		}{
			Type: "KeepAlive",
		}); err != nil {
		log.Println("Failed to write to deepgram client", "error", err)
	}
}

// generateSilence pads quiet stretches with silence frames and downgrades to
// keepalives on long gaps so the engine does not end the stream between
// utterances.
func (s *TranscriptionClient) generateSilence(ctx context.Context, encoding audio.EncodingInfo) {
	type silenceGeneratorState string
	const (
		stateWaiting   silenceGeneratorState = "waiting"
		stateSilence   silenceGeneratorState = "silence"
		stateKeepAlive silenceGeneratorState = "keepAlive"
	)

	const durationMs = 50
	const millisecondsPerSecond = 1000
	ticker := time.NewTicker(durationMs * time.Millisecond)
	defer ticker.Stop()

	chunk := make([]byte, encoding.BytesPerSecond()*durationMs/millisecondsPerSecond)
	for i := range chunk {
		chunk[i] = encoding.SilenceValue()
	}

	state := stateWaiting
	var firstSilenceTime time.Time
	var lastKeepAliveTime time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch state {
			case stateWaiting:
				if time.Since(s.lastMsgTs).Milliseconds() > durationMs {
					state = stateSilence
					firstSilenceTime = time.Now()
				}

			case stateSilence:
				if time.Since(s.lastMsgTs).Milliseconds() < durationMs {
					state = stateWaiting
					continue
				}
				if time.Since(firstSilenceTime).Milliseconds() >= 1000 {
					state = stateKeepAlive
					lastKeepAliveTime = time.Now()
					continue
				}

				if err := s.SendAudio(chunk); err != nil {
					return
				}

			case stateKeepAlive:
				if time.Since(s.lastMsgTs).Milliseconds() < durationMs {
					state = stateWaiting
					continue
				}

				if time.Since(lastKeepAliveTime).Seconds() >= 5 {
					lastKeepAliveTime = time.Now()
					s.sendKeepAlive()
				}
			}
		}
	}
}
