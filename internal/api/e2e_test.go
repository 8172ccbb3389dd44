package api_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeline-ai/backend/internal/api"
	"timeline-ai/backend/internal/client"
	"timeline-ai/backend/internal/document"
	"timeline-ai/backend/internal/llm"
	"timeline-ai/backend/internal/service"
)

// scriptedProvider answers the classifier with a fixed reply and streams a
// fixed list of chunks for the final generation. With hold set it keeps the
// stream open after the chunks until the context is cancelled.
type scriptedProvider struct {
	classification string
	keyEvents      string
	chunks         []string
	hold           bool
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(_ context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if req.Model == "classifier" {
		return &llm.GenerateResponse{Response: p.classification, Done: true}, nil
	}
	return &llm.GenerateResponse{Response: p.keyEvents, Done: true}, nil
}

func (p *scriptedProvider) GenerateStream(ctx context.Context, _ *llm.GenerateRequest, ch chan<- llm.StreamResponse) error {
	defer close(ch)
	for _, c := range p.chunks {
		select {
		case ch <- llm.StreamResponse{Content: c}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.hold {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

// closeCounter wraps sessions to count Close calls.
type closeCounter struct {
	opener llm.Opener

	mu       sync.Mutex
	sessions []*countedSession
}

type countedSession struct {
	llm.Session
	closes atomic.Int32
}

func (s *countedSession) Close() error {
	s.closes.Add(1)
	return s.Session.Close()
}

func (c *closeCounter) Open(ctx context.Context, modelName string) (llm.Session, error) {
	s, err := c.opener.Open(ctx, modelName)
	if err != nil {
		return nil, err
	}
	cs := &countedSession{Session: s}
	c.mu.Lock()
	c.sessions = append(c.sessions, cs)
	c.mu.Unlock()
	return cs, nil
}

// allClosedOnce reports whether want sessions were opened and each was
// closed exactly once.
func (c *closeCounter) allClosedOnce(want int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sessions) != want {
		return false
	}
	for _, s := range c.sessions {
		if s.closes.Load() != 1 {
			return false
		}
	}
	return true
}

func setupTimelineServer(t *testing.T, provider llm.LLMProvider) (*httptest.Server, *closeCounter) {
	counter := &closeCounter{opener: llm.NewSessionFactory(provider)}
	svc := service.NewTimelineService(counter, service.TimelineConfig{
		ClassifierModel: "classifier",
		GeneratorModel:  "generator",
		SystemPrompt:    "You are a helpful assistant.\n\n",
	})
	server := httptest.NewServer(api.NewRouter(api.NewTimelineHandler(svc, 500)))
	t.Cleanup(server.Close)
	return server, counter
}

var titanicChunks = []string{
	`{"events": [{"timeRange": "April 10, 1912", "descr`,
	`iption": "Titanic departs Southampton."}, {"timeRange": "April 14, 1912, 11:40 PM", `,
	`"description": "Titanic strikes an iceberg."}, {"timeRange": "April 15, 1912, 2:20 AM", "description": "Titanic sinks."}]}`,
	"\n```",
}

// TestTimeline_EndToEnd drives the whole pipeline over HTTP: classification,
// generation, relay and client-side materialization.
func TestTimeline_EndToEnd(t *testing.T) {
	t.Run("Historical event", func(t *testing.T) {
		server, counter := setupTimelineServer(t, &scriptedProvider{
			classification: "yes",
			keyEvents:      "1912: departure, iceberg, sinking.",
			chunks:         titanicChunks,
		})
		consumer := client.NewConsumer(server.URL, nil)

		err := consumer.Submit(context.Background(), "The Sinking of the Titanic")

		require.NoError(t, err)
		assert.Equal(t, client.StateDone, consumer.State())
		doc := consumer.Document()
		require.Len(t, doc.Events, 3)
		assert.Equal(t, document.Entry{TimeRange: "April 10, 1912", Description: "Titanic departs Southampton."}, doc.Events[0])
		assert.Equal(t, "Titanic sinks.", doc.Events[2].Description)
		assert.Nil(t, doc.Rejection)
		require.Eventually(t, func() bool { return counter.allClosedOnce(2) }, time.Second, 5*time.Millisecond)
	})

	t.Run("Priming text never reaches the wire", func(t *testing.T) {
		server, _ := setupTimelineServer(t, &scriptedProvider{classification: "yes", chunks: titanicChunks})

		resp, err := http.Post(server.URL+"/api/timeline", "application/json",
			strings.NewReader(`{"stream":true,"params":{"event":"The Sinking of the Titanic"}}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
		assert.NotContains(t, string(body), "```json")
		assert.True(t, strings.HasSuffix(string(body), "data: {\"done\":true}\n\n"))
		assert.Equal(t, 1, strings.Count(string(body), `"done":true`))
	})

	t.Run("Non-historical event", func(t *testing.T) {
		server, counter := setupTimelineServer(t, &scriptedProvider{
			classification: "No",
			chunks:         []string{`{"rejection": "I'm sorry, but `, `breakfast is not a historical event."}`},
		})
		consumer := client.NewConsumer(server.URL, nil)

		err := consumer.Submit(context.Background(), "what I had for breakfast")

		require.NoError(t, err)
		doc := consumer.Document()
		require.NotNil(t, doc.Rejection)
		assert.Equal(t, "I'm sorry, but breakfast is not a historical event.", *doc.Rejection)
		assert.Empty(t, doc.Events)
		require.Eventually(t, func() bool { return counter.allClosedOnce(2) }, time.Second, 5*time.Millisecond)
	})

	t.Run("Cancel mid-stream", func(t *testing.T) {
		server, counter := setupTimelineServer(t, &scriptedProvider{
			classification: "yes",
			chunks:         titanicChunks[:2],
			hold:           true,
		})
		consumer := client.NewConsumer(server.URL, nil)

		errc := make(chan error, 1)
		go func() { errc <- consumer.Submit(context.Background(), "The Sinking of the Titanic") }()
		require.Eventually(t, func() bool { return len(consumer.Document().Events) == 2 }, 2*time.Second, 5*time.Millisecond)

		consumer.Cancel()

		require.NoError(t, <-errc)
		assert.Equal(t, client.StateDone, consumer.State())
		// The partial document is kept.
		assert.Equal(t, "Titanic departs Southampton.", consumer.Document().Events[0].Description)
		// The server notices the disconnect and releases the model session.
		require.Eventually(t, func() bool { return counter.allClosedOnce(2) }, 2*time.Second, 5*time.Millisecond)
	})
}
