// Package providers implements concrete agent.Provider adapters for the
// LLM backends the platform talks to: Anthropic's Claude and any
// OpenAI-compatible endpoint (OpenAI itself, or a local Ollama server).
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dinh2350/lunar/internal/agent"
	"github.com/dinh2350/lunar/pkg/models"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey       string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// Anthropic implements agent.Provider against the Anthropic Messages API.
type Anthropic struct {
	client       anthropic.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

var _ agent.Provider = (*Anthropic)(nil)

// NewAnthropic constructs an Anthropic provider.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("providers: anthropic api key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Anthropic{
		client:       anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

// Name identifies the provider.
func (a *Anthropic) Name() string { return "anthropic" }

// Complete streams a completion, retrying transport errors up to maxRetries.
func (a *Anthropic) Complete(ctx context.Context, req agent.CompletionRequest) (<-chan *agent.ResponseChunk, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  toAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if tools, err := toAnthropicTools(req.Tools); err != nil {
		return nil, err
	} else if len(tools) > 0 {
		params.Tools = tools
	}

	out := make(chan *agent.ResponseChunk)
	go a.stream(ctx, params, out)
	return out, nil
}

func (a *Anthropic) stream(ctx context.Context, params anthropic.MessageNewParams, out chan<- *agent.ResponseChunk) {
	defer close(out)

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				out <- &agent.ResponseChunk{Err: ctx.Err(), Done: true}
				return
			case <-time.After(a.retryDelay * time.Duration(attempt)):
			}
		}

		err := a.runStream(ctx, params, out)
		if err == nil {
			return
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	out <- &agent.ResponseChunk{Err: fmt.Errorf("providers: anthropic stream failed: %w", lastErr), Done: true}
}

func (a *Anthropic) runStream(ctx context.Context, params anthropic.MessageNewParams, out chan<- *agent.ResponseChunk) error {
	stream := a.client.Messages.NewStreaming(ctx, params)
	message := anthropic.Message{}
	var pendingToolCalls []models.ToolCall

	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return err
		}

		switch delta := event.Delta.(type) {
		case anthropic.ContentBlockDeltaEventDelta:
			if delta.Text != "" {
				out <- &agent.ResponseChunk{Text: delta.Text}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}

	for _, block := range message.Content {
		if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			args, _ := json.Marshal(tu.Input)
			pendingToolCalls = append(pendingToolCalls, models.ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: args,
			})
		}
	}

	out <- &agent.ResponseChunk{ToolCalls: pendingToolCalls, Done: true}
	return nil
}

func toAnthropicMessages(msgs []models.ChatMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "user", "tool":
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func toAnthropicTools(defs []models.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		var schema map[string]any
		if len(d.Parameters) > 0 {
			if err := json.Unmarshal(d.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("providers: decode tool schema for %s: %w", d.Name, err)
			}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema["properties"],
				},
			},
		})
	}
	return out, nil
}
