package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openAIProvider talks to the OpenAI chat completions API or any server
// implementing it (vLLM, LM Studio, llama.cpp) when a base URL is set.
type openAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates an OpenAI provider. baseURL may be empty.
func NewOpenAIProvider(apiKey, baseURL string) LLMProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openAIProvider{client: openai.NewClient(opts...)}
}

func (p *openAIProvider) Name() string { return "openai" }

func (p *openAIProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	completion, err := p.client.Chat.Completions.New(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai: no response choices returned")
	}
	return &GenerateResponse{
		Model:    completion.Model,
		Response: completion.Choices[0].Message.Content,
		Done:     true,
	}, nil
}

func (p *openAIProvider) GenerateStream(ctx context.Context, req *GenerateRequest, ch chan<- StreamResponse) error {
	defer close(ch)
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(req))
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		select {
		case ch <- StreamResponse{Content: choice.Delta.Content, Done: choice.FinishReason != ""}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai stream failed: %w", err)
	}
	return nil
}

func (p *openAIProvider) params(req *GenerateRequest) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: ConvertOpenAIMessages(req.Messages),
	}
}

// ConvertOpenAIMessages maps conversation messages to OpenAI message params.
// Exported for testing.
func ConvertOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "user":
			out = append(out, openai.UserMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		}
	}
	return out
}
