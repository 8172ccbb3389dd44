package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

type geminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a provider for the Gemini API. baseURL may be
// empty.
func NewGeminiProvider(ctx context.Context, apiKey, baseURL string) (LLMProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &geminiProvider{client: client}, nil
}

func (p *geminiProvider) Name() string { return "gemini" }

func (p *geminiProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	config, contents := ConvertGeminiMessages(req.Messages)
	result, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	return &GenerateResponse{
		Model:    req.Model,
		Response: result.Text(),
		Done:     true,
	}, nil
}

func (p *geminiProvider) GenerateStream(ctx context.Context, req *GenerateRequest, ch chan<- StreamResponse) error {
	defer close(ch)
	config, contents := ConvertGeminiMessages(req.Messages)
	for result, err := range p.client.Models.GenerateContentStream(ctx, req.Model, contents, config) {
		if err != nil {
			return fmt.Errorf("gemini stream failed: %w", err)
		}
		select {
		case ch <- StreamResponse{Content: result.Text()}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ConvertGeminiMessages maps conversation messages to Gemini contents. The
// system prompt travels in the generation config. Gemini has no assistant
// prefill: a trailing model turn is dropped and the model is left to open
// the code fence itself, which the document parser skips.
// Exported for testing.
func ConvertGeminiMessages(msgs []Message) (*genai.GenerateContentConfig, []*genai.Content) {
	system, rest := systemPrompt(msgs)
	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if n := len(rest); n > 0 && rest[n-1].Role == "assistant" {
		rest = rest[:n-1]
	}
	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}
	return config, contents
}
