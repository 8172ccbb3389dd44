package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

type anthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a provider for the Anthropic Messages API.
// baseURL may be empty.
func NewAnthropicProvider(apiKey, baseURL string) LLMProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &anthropicProvider{client: anthropic.NewClient(opts...)}
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	message, err := p.client.Messages.New(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	var content strings.Builder
	for _, block := range message.Content {
		content.WriteString(block.Text)
	}
	return &GenerateResponse{
		Model:    string(message.Model),
		Response: content.String(),
		Done:     true,
	}, nil
}

func (p *anthropicProvider) GenerateStream(ctx context.Context, req *GenerateRequest, ch chan<- StreamResponse) error {
	defer close(ch)
	stream := p.client.Messages.NewStreaming(ctx, p.params(req))
	defer stream.Close()

	for stream.Next() {
		event := stream.Current()
		var resp StreamResponse
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
			if !ok {
				continue
			}
			resp.Content = delta.Text
		case anthropic.MessageStopEvent:
			resp.Done = true
		default:
			continue
		}
		select {
		case ch <- resp:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic stream failed: %w", err)
	}
	return nil
}

func (p *anthropicProvider) params(req *GenerateRequest) anthropic.MessageNewParams {
	system, messages := ConvertAnthropicMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: anthropicMaxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

// ConvertAnthropicMessages splits off the system prompt and maps the rest to
// Anthropic message params. A trailing assistant message is sent as a
// prefill, which the API rejects when it ends in whitespace.
// Exported for testing.
func ConvertAnthropicMessages(msgs []Message) (string, []anthropic.MessageParam) {
	system, rest := systemPrompt(msgs)
	out := make([]anthropic.MessageParam, 0, len(rest))
	for i, m := range rest {
		switch m.Role {
		case "user":
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			content := m.Content
			if i == len(rest)-1 {
				content = strings.TrimRight(content, " \t\r\n")
			}
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(content)))
		}
	}
	return strings.TrimSpace(system), out
}
