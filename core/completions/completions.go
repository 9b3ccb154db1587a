// Package completions defines the contract between the completion gateway
// and the upstream model clients.
package completions

import (
	"context"

	"github.com/abyssvoice/abyss-core/core/faults"
)

// ErrNoMessages classifies an empty exchange as a caller error; the gateway
// surfaces it without retrying.
var ErrNoMessages = faults.New(faults.ParameterInvalid, nil, "chat request has no messages")

// Client is implemented by upstream model adapters. Complete returns the
// assistant text for one exchange; errors carry a taxonomy classification so
// the gateway's retry policy can tell transient from terminal failures.
type Client interface {
	Complete(ctx context.Context, request ChatRequest) (string, error)
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

type ChatRequest struct {
	Messages    []Message
	Temperature float32
}

// ChatResponse is what the gateway hands back to callers. UsedFallback marks
// canned text produced after upstream exhaustion; it never accompanies an
// error.
type ChatResponse struct {
	Text         string
	UsedFallback bool
}

// LastUserMessage returns the content of the most recent user-role message,
// or "" when there is none.
func (r ChatRequest) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Validate rejects requests the upstream would refuse anyway.
func (r ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}
	return nil
}
