package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type ollamaProvider struct {
	client *http.Client
	url    string
}

// NewOllamaProvider returns a provider for an Ollama server's /api/chat endpoint.
func NewOllamaProvider(url string) LLMProvider {
	return &ollamaProvider{
		client: &http.Client{},
		url:    url,
	}
}

type ollamaChatChunk struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

func (p *ollamaProvider) Name() string { return "ollama" }

func (p *ollamaProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	r := *req
	r.Stream = false
	resp, err := p.post(ctx, &r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	var chatResp ollamaChatChunk
	if err := json.Unmarshal(bodyBytes, &chatResp); err != nil {
		return nil, fmt.Errorf("could not decode response: %s", string(bodyBytes))
	}
	if chatResp.Error != "" {
		return nil, fmt.Errorf("ollama: %s", chatResp.Error)
	}
	return &GenerateResponse{
		Model:    chatResp.Model,
		Response: chatResp.Message.Content,
		Done:     chatResp.Done,
	}, nil
}

func (p *ollamaProvider) GenerateStream(ctx context.Context, req *GenerateRequest, ch chan<- StreamResponse) error {
	defer close(ch)
	r := *req
	r.Stream = true
	resp, err := p.post(ctx, &r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("could not decode stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return fmt.Errorf("ollama: %s", chunk.Error)
		}

		select {
		case ch <- StreamResponse{Content: chunk.Message.Content, Done: chunk.Done}:
		case <-ctx.Done():
			return ctx.Err()
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("could not read stream: %w", err)
	}
	return nil
}

func (p *ollamaProvider) post(ctx context.Context, req *GenerateRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/api/chat", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("could not create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api returned non-200 status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return resp, nil
}
