// Package llm talks to language model backends.
//
// Providers are stateless: every call carries the whole conversation. The
// session layer in session.go builds conversations on top of a provider and
// exposes them as the open / append / generate / close capability the
// timeline service drives.
package llm

import (
	"context"

	"timeline-ai/backend/internal/model"
)

// StreamResponse is one chunk pushed by LLMProvider.GenerateStream.
type StreamResponse struct {
	Content string
	Done    bool
	Error   string
}

// LLMProvider defines the interface for interacting with a language model.
// GenerateStream must close ch before returning and must stop sending once
// ctx is done.
type LLMProvider interface {
	Name() string
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	GenerateStream(ctx context.Context, req *GenerateRequest, ch chan<- StreamResponse) error
}

// GenerateRequest is a full conversation sent to a provider. When the last
// message has the assistant role the provider continues that message.
type GenerateRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages,omitempty"`
	Stream   bool      `json:"stream"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// systemPrompt joins the leading system messages and returns the rest. Used
// by providers whose APIs take the system prompt out of band.
func systemPrompt(msgs []Message) (string, []Message) {
	var system string
	i := 0
	for ; i < len(msgs) && msgs[i].Role == string(model.RoleSystem); i++ {
		system += msgs[i].Content
	}
	return system, msgs[i:]
}
