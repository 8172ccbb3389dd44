// Package client consumes the timeline stream over HTTP and keeps a live,
// always-valid view of the document being generated.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"timeline-ai/backend/internal/document"
	"timeline-ai/backend/internal/model"
)

// State is the lifecycle of one submitted request.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateStreaming
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Renderer is notified of every state or document change. Render is called
// with the consumer's lock held and must not call back into the Consumer.
type Renderer interface {
	Render(doc document.Document, state State)
}

// StreamError carries the message of an error frame sent by the server.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "timeline stream failed: " + e.Message
}

// ErrUnexpectedEnd is returned when the server closes the stream without a
// done or error frame.
var ErrUnexpectedEnd = errors.New("timeline stream ended without a terminal frame")

// Option configures a Consumer.
type Option func(*Consumer)

// WithHTTPClient sets the client used for requests. It must not set a
// timeout shorter than a whole generation.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Consumer) { c.httpClient = hc }
}

// WithPath overrides the endpoint path, "/timeline" by default.
func WithPath(path string) Option {
	return func(c *Consumer) { c.path = path }
}

// Consumer submits events to a timeline server and materializes the streamed
// text into a document after every frame.
type Consumer struct {
	baseURL    string
	path       string
	httpClient *http.Client
	renderer   Renderer

	mu        sync.Mutex
	run       int
	state     State
	doc       document.Document
	buf       strings.Builder
	cancel    context.CancelFunc
	cancelled bool
}

func NewConsumer(baseURL string, renderer Renderer, opts ...Option) *Consumer {
	c := &Consumer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		path:       "/timeline",
		httpClient: http.DefaultClient,
		renderer:   renderer,
		doc:        document.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Document returns the latest materialized document.
func (c *Consumer) Document() document.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}

// Submit requests a timeline for event and consumes the stream until it
// ends. An empty event is ignored. A submission that is cancelled, or
// replaced by a newer one, returns nil.
func (c *Consumer) Submit(ctx context.Context, event string) error {
	if event == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	run := c.begin(cancel)

	body, err := json.Marshal(model.TimelineRequest{Stream: true, Params: model.TimelineParams{Event: event}})
	if err != nil {
		c.finish(run)
		return fmt.Errorf("could not marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		c.finish(run)
		return fmt.Errorf("could not create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.abandoned(run) {
			return nil
		}
		c.finish(run)
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.finish(run)
		return fmt.Errorf("timeline server returned status %d", resp.StatusCode)
	}

	events := newEventReader(resp.Body)
	for {
		data, err := events.next()
		if err != nil {
			if c.abandoned(run) {
				return nil
			}
			c.finish(run)
			if errors.Is(err, io.EOF) {
				return ErrUnexpectedEnd
			}
			return fmt.Errorf("could not read stream: %w", err)
		}

		var frame model.Frame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			if c.abandoned(run) {
				return nil
			}
			c.finish(run)
			return fmt.Errorf("could not decode frame %q: %w", data, err)
		}

		terminal, applied := c.apply(run, frame)
		if !applied {
			slog.Debug("Discarding frame after cancel", "type", frame.Type)
			return nil
		}
		if terminal {
			if frame.Type == model.FrameError {
				return &StreamError{Message: frame.Text}
			}
			return nil
		}
	}
}

// Cancel stops the current submission. It is a no-op when nothing is in
// flight. A loading submission goes back to idle, a streaming one keeps its
// partial document and is done.
func (c *Consumer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateLoading:
		c.state = StateIdle
	case StateStreaming:
		c.state = StateDone
	default:
		return
	}
	c.cancelled = true
	if c.cancel != nil {
		c.cancel()
	}
	c.render()
}

// begin resets the consumer for a new submission, cancelling any previous
// one, and returns the new run number.
func (c *Consumer) begin(cancel context.CancelFunc) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.run++
	c.cancel = cancel
	c.cancelled = false
	c.buf.Reset()
	c.doc = document.Default()
	c.state = StateLoading
	c.render()
	return c.run
}

// apply folds one frame into the consumer state. applied is false when the
// run was cancelled or superseded.
func (c *Consumer) apply(run int, frame model.Frame) (terminal, applied bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != run || c.cancelled {
		return false, false
	}
	if frame.IsTerminal() {
		c.closeRun()
		return true, true
	}
	if frame.Type != model.FrameText {
		return false, true
	}

	c.buf.WriteString(frame.Text)
	c.doc = document.Materialize(c.buf.String())
	if c.state == StateLoading && !c.doc.Empty() {
		c.state = StateStreaming
	}
	c.render()
	return false, true
}

// finish ends a run that failed outside the stream protocol.
func (c *Consumer) finish(run int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != run || c.cancelled {
		return
	}
	c.closeRun()
}

// closeRun moves to done and releases the transport. Called with c.mu held.
func (c *Consumer) closeRun() {
	c.state = StateDone
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.render()
}

func (c *Consumer) abandoned(run int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run != run || c.cancelled
}

func (c *Consumer) render() {
	if c.renderer != nil {
		c.renderer.Render(c.doc, c.state)
	}
}
