package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dinh2350/lunar/internal/agent"
	"github.com/dinh2350/lunar/pkg/models"
)

// OpenAIConfig configures the OpenAI-compatible provider. BaseURL lets the
// same adapter talk to an Ollama server via OLLAMA_URL, since Ollama
// exposes an OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// OpenAI implements agent.Provider against any OpenAI-compatible chat API.
type OpenAI struct {
	client       *openai.Client
	defaultModel string
}

var _ agent.Provider = (*OpenAI)(nil)

// NewOpenAI constructs an OpenAI-compatible provider.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o-mini"
	}
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client:       openai.NewClientWithConfig(conf),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name identifies the provider.
func (p *OpenAI) Name() string { return "openai" }

// Complete streams a completion from the chat endpoint.
func (p *OpenAI) Complete(ctx context.Context, req agent.CompletionRequest) (<-chan *agent.ResponseChunk, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := m.Role
		if role == "tool" {
			role = openai.ChatMessageRoleTool
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	tools, err := toOpenAITools(req.Tools)
	if err != nil {
		return nil, err
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		Stream:      true,
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, apiReq)
	if err != nil {
		return nil, fmt.Errorf("providers: openai stream request: %w", err)
	}

	out := make(chan *agent.ResponseChunk)
	go p.consume(stream, out)
	return out, nil
}

func (p *OpenAI) consume(stream *openai.ChatCompletionStream, out chan<- *agent.ResponseChunk) {
	defer close(out)
	defer stream.Close()

	pending := map[int]*models.ToolCall{}
	var order []int

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			out <- &agent.ResponseChunk{Err: fmt.Errorf("providers: openai stream recv: %w", err), Done: true}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			out <- &agent.ResponseChunk{Text: delta.Content}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := pending[idx]
			if !ok {
				call = &models.ToolCall{}
				pending[idx] = call
				order = append(order, idx)
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			call.Arguments = append(call.Arguments, []byte(tc.Function.Arguments)...)
		}
	}

	var calls []models.ToolCall
	for _, idx := range order {
		c := pending[idx]
		if !json.Valid(c.Arguments) {
			c.Arguments = json.RawMessage("{}")
		}
		calls = append(calls, *c)
	}
	out <- &agent.ResponseChunk{ToolCalls: calls, Done: true}
}

func toOpenAITools(defs []models.ToolDefinition) ([]openai.Tool, error) {
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		var schema map[string]any
		if len(d.Parameters) > 0 {
			if err := json.Unmarshal(d.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("providers: decode tool schema for %s: %w", d.Name, err)
			}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  schema,
			},
		})
	}
	return out, nil
}
