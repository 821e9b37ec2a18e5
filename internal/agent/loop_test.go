package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dinh2350/lunar/internal/sessions"
	"github.com/dinh2350/lunar/pkg/models"
)

// scriptedProvider returns one canned response per call, in order, so a
// test can drive the loop through a fixed number of tool-call rounds.
type scriptedProvider struct {
	responses []agentResponse
	call      int
}

type agentResponse struct {
	text  string
	calls []models.ToolCall
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req CompletionRequest) (<-chan *ResponseChunk, error) {
	resp := p.responses[p.call]
	p.call++
	out := make(chan *ResponseChunk, 2)
	if resp.text != "" {
		out <- &ResponseChunk{Text: resp.text}
	}
	out <- &ResponseChunk{ToolCalls: resp.calls, Done: true}
	close(out)
	return out, nil
}

func newTestStore(t *testing.T) *sessions.Store {
	t.Helper()
	store, err := sessions.NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestLoopRunsWithoutToolCalls(t *testing.T) {
	provider := &scriptedProvider{responses: []agentResponse{{text: "hello there"}}}
	router := newTestRouter(nil, nil)
	store := newTestStore(t)
	loop := NewLoop(provider, router, store)

	text, err := loop.Run(context.Background(), "s1", "hi", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if text != "hello there" {
		t.Fatalf("text = %q, want %q", text, "hello there")
	}
}

func TestLoopExecutesToolThenReplies(t *testing.T) {
	router := newTestRouter([]models.Permission{
		{ToolName: "echo", Level: models.PermissionRead},
	}, nil)
	router.Register(&fakeTool{name: "echo", result: "echoed"})

	provider := &scriptedProvider{responses: []agentResponse{
		{calls: []models.ToolCall{{ID: "1", Name: "echo", Arguments: json.RawMessage(`{}`)}}},
		{text: "done"},
	}}
	store := newTestStore(t)
	loop := NewLoop(provider, router, store)

	text, err := loop.Run(context.Background(), "s1", "run echo", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if text != "done" {
		t.Fatalf("text = %q, want %q", text, "done")
	}

	turns, err := store.LoadRecent("s1", 0)
	if err != nil {
		t.Fatalf("LoadRecent: %v", err)
	}
	var sawToolResult bool
	for _, turn := range turns {
		if turn.Kind == models.TurnToolResult {
			sawToolResult = true
		}
	}
	if !sawToolResult {
		t.Fatalf("expected a tool_result turn in the transcript")
	}
}

func TestLoopStopsAtMaxIterations(t *testing.T) {
	router := newTestRouter([]models.Permission{
		{ToolName: "echo", Level: models.PermissionRead},
	}, nil)
	router.Register(&fakeTool{name: "echo", result: "echoed"})

	call := models.ToolCall{ID: "1", Name: "echo", Arguments: json.RawMessage(`{}`)}
	responses := make([]agentResponse, 0, defaultMaxIterations+1)
	for i := 0; i < defaultMaxIterations+1; i++ {
		responses = append(responses, agentResponse{calls: []models.ToolCall{call}})
	}
	provider := &scriptedProvider{responses: responses}
	store := newTestStore(t)
	loop := NewLoop(provider, router, store)

	_, err := loop.Run(context.Background(), "s1", "loop forever", nil, nil)
	if err != ErrMaxIterations {
		t.Fatalf("err = %v, want ErrMaxIterations", err)
	}
}
