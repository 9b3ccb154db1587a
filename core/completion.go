package orchestration

import (
	"context"
	"hash/fnv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/abyssvoice/abyss-core/core/completions"
	"github.com/abyssvoice/abyss-core/core/faults"
)

const (
	completionAttempts   = 3
	completionRetryDelay = 500 * time.Millisecond
	attemptTimeout       = 10 * time.Second

	// constrainedInstructionLimit bounds system instructions on constrained
	// devices, in runes.
	constrainedInstructionLimit = 512
)

var defaultCannedResponses = []string{
	"I did not quite catch that. Could you say it again?",
	"I'm having trouble reaching my brain right now, give me a moment and try again.",
	"Sorry, I lost my train of thought. What were you saying?",
}

// CompletionGateway sits between the pipeline and the upstream model. It
// absorbs transient upstream failure: exhausted retries yield a canned reply
// flagged as fallback rather than an error, so the assistant always says
// something.
type CompletionGateway struct {
	client          completions.Client
	deviceClass     DeviceClass
	cannedResponses []string

	retryDelay time.Duration
	timeout    time.Duration

	sleep func(time.Duration)
}

type CompletionGatewayOption func(*CompletionGateway)

func WithFallbackResponses(responses ...string) CompletionGatewayOption {
	return func(g *CompletionGateway) {
		if len(responses) > 0 {
			g.cannedResponses = responses
		}
	}
}

func WithRetryDelay(delay time.Duration) CompletionGatewayOption {
	return func(g *CompletionGateway) { g.retryDelay = delay }
}

func WithAttemptTimeout(timeout time.Duration) CompletionGatewayOption {
	return func(g *CompletionGateway) { g.timeout = timeout }
}

func WithGatewayDeviceClass(deviceClass DeviceClass) CompletionGatewayOption {
	return func(g *CompletionGateway) { g.deviceClass = deviceClass }
}

func NewCompletionGateway(client completions.Client, opts ...CompletionGatewayOption) *CompletionGateway {
	gateway := &CompletionGateway{
		client:          client,
		cannedResponses: defaultCannedResponses,
		retryDelay:      completionRetryDelay,
		timeout:         attemptTimeout,
		sleep:           time.Sleep,
	}
	for _, opt := range opts {
		opt(gateway)
	}
	return gateway
}

// Complete runs one exchange against the upstream model. Transient failures
// are retried with a fixed delay; terminal classifications (auth, validation,
// rate limit) propagate immediately. Exhaustion by transient failure returns
// a canned reply with UsedFallback set and no error.
func (g *CompletionGateway) Complete(ctx context.Context, request completions.ChatRequest) (completions.ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "completion gateway")
	defer span.End()

	if err := request.Validate(); err != nil {
		return completions.ChatResponse{}, err
	}

	if g.deviceClass == DeviceClassConstrained {
		request = truncateInstructions(request, constrainedInstructionLimit)
	}

	var lastErr error
	for attempt := 0; attempt < completionAttempts; attempt++ {
		if attempt > 0 {
			g.sleep(g.retryDelay)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		text, err := g.client.Complete(attemptCtx, request)
		cancel()

		if err == nil {
			span.SetAttributes(attribute.Int("completion.attempts", attempt+1))
			return completions.ChatResponse{Text: text}, nil
		}
		if !faults.Transient(err) {
			return completions.ChatResponse{}, err
		}
		lastErr = err
	}

	logger.WarnContext(ctx, "upstream model exhausted, answering with canned response",
		"error", lastErr)
	span.SetAttributes(attribute.Bool("completion.used_fallback", true))

	return completions.ChatResponse{
		Text:         g.cannedResponse(request.LastUserMessage()),
		UsedFallback: true,
	}, nil
}

// cannedResponse picks deterministically from the configured set, keyed off
// the latest user message so repeated failures do not always produce the
// identical reply.
func (g *CompletionGateway) cannedResponse(lastUserMessage string) string {
	if len(g.cannedResponses) == 0 {
		return defaultCannedResponses[0]
	}
	hash := fnv.New32a()
	hash.Write([]byte(lastUserMessage))
	return g.cannedResponses[hash.Sum32()%uint32(len(g.cannedResponses))]
}

// truncateInstructions bounds every system message in the request. It runs
// before the first attempt and is not repeated on retries.
func truncateInstructions(request completions.ChatRequest, limit int) completions.ChatRequest {
	truncated := make([]completions.Message, len(request.Messages))
	copy(truncated, request.Messages)
	for i, message := range truncated {
		if message.Role != completions.RoleSystem {
			continue
		}
		if runes := []rune(message.Content); len(runes) > limit {
			truncated[i].Content = string(runes[:limit])
		}
	}
	request.Messages = truncated
	return request
}
