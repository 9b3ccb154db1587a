// Package orchestration ties the speech pipeline together: recognition
// sessions on one side, the completion gateway and the synthesis channels on
// the other, with a single-owner audio output at the end.
package orchestration

import (
	"context"
	"sync"

	"github.com/abyssvoice/abyss-core/core/completions"
	"github.com/abyssvoice/abyss-core/core/events"
	"github.com/abyssvoice/abyss-core/core/speechtotext"
	"github.com/abyssvoice/abyss-core/core/texttospeech"
)

type Orchestrator struct {
	localRecognizer    speechtotext.Provider
	remoteRecognizer   speechtotext.Provider
	streamingSynthesis texttospeech.Client
	bufferedSynthesis  texttospeech.Client
	completionClient   completions.Client
	audioOutputClient  AudioOutputClient
	deviceClass        DeviceClass
	systemInstructions string
	cannedResponses    []string

	recognition *RecognitionManager
	synthesis   *SynthesisCoordinator
	gateway     *CompletionGateway
	output      *AudioOutput

	emitterMu sync.RWMutex
	emitter   eventEmitter

	historyMu sync.Mutex
	history   []completions.Message

	baseContext context.Context
	closeOnce   sync.Once
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		emitter:     noopEventEmitter,
		baseContext: context.Background(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.output = NewAudioOutput(o.audioOutputClient)
	o.recognition = NewRecognitionManager(o.localRecognizer, o.remoteRecognizer, o.deviceClass, o.emitEvent)
	o.synthesis = NewSynthesisCoordinator(o.streamingSynthesis, o.bufferedSynthesis, o.deviceClass, o.emitEvent)

	gatewayOpts := []CompletionGatewayOption{WithGatewayDeviceClass(o.deviceClass)}
	if len(o.cannedResponses) > 0 {
		gatewayOpts = append(gatewayOpts, WithFallbackResponses(o.cannedResponses...))
	}
	o.gateway = NewCompletionGateway(o.completionClient, gatewayOpts...)

	return o
}

// AudioOutput exposes the playback facade so synthesis clients can be wired
// to it as their sink.
func (o *Orchestrator) AudioOutput() *AudioOutput {
	return o.output
}

// Orchestrate registers the callback set and starts responding to finished
// utterances: every final transcript runs a full assistant turn. ctx is the
// base context for those turns.
//
// Contract: call Orchestrate at most once per orchestrator instance.
func (o *Orchestrator) Orchestrate(ctx context.Context, opts ...OrchestrateOption) {
	options := OrchestrateOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	o.baseContext = ctx
	callbackEmitter := newCallbackEventEmitter(options)

	o.emitterMu.Lock()
	o.emitter = func(event events.Event) {
		callbackEmitter(event)
		if finalTranscript, ok := event.(events.UserTranscriptFinal); ok {
			go func() {
				if err := o.Converse(o.baseContext, finalTranscript.Transcript); err != nil {
					o.emitEvent(events.NewPipelineFailed(err))
				}
			}()
		}
	}
	o.emitterMu.Unlock()
}

func (o *Orchestrator) emitEvent(event events.Event) {
	o.emitterMu.RLock()
	emit := o.emitter
	o.emitterMu.RUnlock()
	emit(event)
}

// Listen starts a recognition session. It is a no-op while one is active.
func (o *Orchestrator) Listen(ctx context.Context) error {
	return o.recognition.Listen(ctx)
}

// StopListening finalizes the active recognition session.
func (o *Orchestrator) StopListening() error {
	return o.recognition.StopListening()
}

// Session returns a snapshot of the current recognition session.
func (o *Orchestrator) Session() RecognitionSession {
	return o.recognition.Session()
}

// Converse runs one full assistant turn: the transcript goes through the
// completion gateway and the reply is spoken through the synthesis
// coordinator. The response event fires before synthesis starts so UIs can
// render text while audio is still being produced.
func (o *Orchestrator) Converse(ctx context.Context, transcript string) error {
	ctx, span := tracer.Start(ctx, "assistant turn")
	defer span.End()

	request := o.buildRequest(transcript)

	response, err := o.gateway.Complete(ctx, request)
	if err != nil {
		return err
	}

	o.recordExchange(transcript, response)
	o.emitEvent(events.NewAssistantResponseFinal(response.Text, response.UsedFallback))

	return o.synthesis.Speak(ctx, response.Text)
}

func (o *Orchestrator) buildRequest(transcript string) completions.ChatRequest {
	o.historyMu.Lock()
	defer o.historyMu.Unlock()

	messages := make([]completions.Message, 0, len(o.history)+2)
	if o.systemInstructions != "" {
		messages = append(messages, completions.Message{
			Role:    completions.RoleSystem,
			Content: o.systemInstructions,
		})
	}
	messages = append(messages, o.history...)
	messages = append(messages, completions.Message{
		Role:    completions.RoleUser,
		Content: transcript,
	})
	return completions.ChatRequest{Messages: messages}
}

// recordExchange appends the turn to the conversation memory. Fallback
// replies are kept out of it so the model never sees canned text as its own.
func (o *Orchestrator) recordExchange(transcript string, response completions.ChatResponse) {
	o.historyMu.Lock()
	defer o.historyMu.Unlock()

	o.history = append(o.history, completions.Message{
		Role:    completions.RoleUser,
		Content: transcript,
	})
	if !response.UsedFallback {
		o.history = append(o.history, completions.Message{
			Role:    completions.RoleAssistant,
			Content: response.Text,
		})
	}
}

// Close stops listening and silences playback. Safe to call more than once.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		if err := o.recognition.StopListening(); err != nil {
			logger.Warn("failed to stop recognition on close", "error", err)
		}
		o.output.Stop()
	})
}
