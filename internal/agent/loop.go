package agent

import (
	"context"
	"time"

	"github.com/dinh2350/lunar/internal/sessions"
	"github.com/dinh2350/lunar/pkg/models"
)

// defaultMaxIterations bounds the LLM/tool interleaving loop (§4.G) so a
// model that keeps calling tools can never run forever.
const defaultMaxIterations = 12

// StreamEvent is emitted to a caller-supplied sink as the loop produces
// text or finishes a tool call, so a channel connector can stream partial
// output.
type StreamEvent struct {
	Text       string
	ToolCall   *models.ToolCall
	ToolResult *models.ToolResult
	Done       bool
	Err        error
}

// Loop drives one user turn through the bounded agent loop: call the
// model, execute any tool calls it requests through the router, feed the
// results back, and repeat until the model stops calling tools or the
// iteration bound is hit.
type Loop struct {
	Provider      Provider
	Router        *Router
	Sessions      *sessions.Store
	MaxIterations int
	Model         string
	System        string
	Temperature   float64
}

// NewLoop builds a loop with the default iteration bound.
func NewLoop(provider Provider, router *Router, store *sessions.Store) *Loop {
	return &Loop{
		Provider:      provider,
		Router:        router,
		Sessions:      store,
		MaxIterations: defaultMaxIterations,
	}
}

// Run executes one user turn to completion, appending every turn it
// produces (user, assistant, tool_call, tool_result) to the session
// transcript as it goes, and emits StreamEvents on events as they occur.
// The final assistant text is always returned even if events is nil or
// unread, per the buffer-full-reply-then-stream contract (§9 Open
// Question: streaming never retracts frames, but the returned text is
// always the complete, final content).
func (l *Loop) Run(ctx context.Context, sessionID string, userText string, tools []models.ToolDefinition, events chan<- StreamEvent) (string, error) {
	now := time.Now()
	if err := l.Sessions.AppendTurn(ctx, sessionID, models.UserTurn(userText, now)); err != nil {
		return "", err
	}

	for iteration := 0; iteration < l.MaxIterations; iteration++ {
		history, err := l.Sessions.LoadRecent(sessionID, 0)
		if err != nil {
			return "", err
		}
		messages := sessions.ToMessages(history)

		req := CompletionRequest{
			Model:       l.Model,
			System:      l.System,
			Messages:    messages,
			Tools:       tools,
			MaxTokens:   4096,
			Temperature: l.Temperature,
		}
		chunks, err := l.Provider.Complete(ctx, req)
		if err != nil {
			return "", err
		}

		var (
			text      string
			toolCalls []models.ToolCall
		)
		for chunk := range chunks {
			if chunk.Err != nil {
				emit(events, StreamEvent{Err: chunk.Err, Done: true})
				return "", chunk.Err
			}
			if chunk.Text != "" {
				text += chunk.Text
				emit(events, StreamEvent{Text: chunk.Text})
			}
			if len(chunk.ToolCalls) > 0 {
				toolCalls = append(toolCalls, chunk.ToolCalls...)
			}
		}

		assistantTurn := models.AssistantTurn(text, time.Now(), toolCalls...)
		if err := l.Sessions.AppendTurn(ctx, sessionID, assistantTurn); err != nil {
			return "", err
		}

		if len(toolCalls) == 0 {
			emit(events, StreamEvent{Done: true})
			return text, nil
		}

		for _, call := range toolCalls {
			emit(events, StreamEvent{ToolCall: &call})
			callTurn := models.ToolCallTurn(call.ID, call.Name, call.Arguments, time.Now())
			if err := l.Sessions.AppendTurn(ctx, sessionID, callTurn); err != nil {
				return "", err
			}
			result := l.Router.Execute(ctx, sessionID, call)
			emit(events, StreamEvent{ToolResult: &result})

			resultTurn := models.ToolResultTurn(call.ID, call.Name, result.Result, result.OK, time.Now())
			if !result.OK {
				resultTurn.ResultContent = result.Reason
			}
			if err := l.Sessions.AppendTurn(ctx, sessionID, resultTurn); err != nil {
				return "", err
			}
		}
	}

	emit(events, StreamEvent{Err: ErrMaxIterations, Done: true})
	return "", ErrMaxIterations
}

func emit(events chan<- StreamEvent, ev StreamEvent) {
	if events == nil {
		return
	}
	select {
	case events <- ev:
	default:
	}
}
