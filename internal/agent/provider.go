// Package agent implements the bounded LLM/tool interleaving loop (§4.G),
// the tool router and permission manager (§4.E), and the abstract chat
// provider contract concrete LLM adapters implement.
package agent

import (
	"context"

	"github.com/dinh2350/lunar/pkg/models"
)

// CompletionRequest is one LLM call: the running message history, the tool
// catalog available this iteration, and generation options.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []models.ChatMessage
	Tools       []models.ToolDefinition
	MaxTokens   int
	Temperature float64
}

// ResponseChunk is one increment of a streamed completion. A chunk carries
// either a token of text, a completed tool call, or a terminal error; Done
// is set on the final chunk of a call.
type ResponseChunk struct {
	Text      string
	ToolCalls []models.ToolCall
	Err       error
	Done      bool
}

// Provider is the abstract chat contract every concrete LLM adapter
// implements. Complete streams chunks as the provider produces them; the
// channel is closed when the call finishes or ctx is cancelled.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (<-chan *ResponseChunk, error)
	Name() string
}
