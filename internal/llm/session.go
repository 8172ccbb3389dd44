package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"timeline-ai/backend/internal/model"
)

var (
	// ErrSessionClosed is returned by every session operation after Close,
	// including a second Close.
	ErrSessionClosed = errors.New("llm: session closed")

	// ErrGenerationActive is returned when a session is asked to append or
	// generate while a generation is still running.
	ErrGenerationActive = errors.New("llm: generation already active")

	// ErrGenerationUsed is returned when Text or Stream is called on a
	// generation that has already been started.
	ErrGenerationUsed = errors.New("llm: generation already started")

	// ErrStreamClosed is returned by Next after the stream was closed.
	ErrStreamClosed = errors.New("llm: stream closed")
)

// AppendOptions tags an appended message. Role defaults to user.
type AppendOptions struct {
	Role   model.Role
	Hidden bool
}

// GenerateOptions selects the role the model answers as. Role defaults to
// assistant.
type GenerateOptions struct {
	Role model.Role
}

// Opener opens model sessions.
type Opener interface {
	Open(ctx context.Context, modelName string) (Session, error)
}

// Session is a conversation with a model. It owns at most one active
// generation and must be closed exactly once.
type Session interface {
	ID() string
	Append(text string, opts AppendOptions) error
	Generate(opts GenerateOptions) (*Generation, error)
	Close() error
}

// FragmentStream is a pull-based sequence of generated fragments. Next
// returns io.EOF once the generation completed. Next and Close must not be
// called concurrently; Close may be called at any point and more than once.
type FragmentStream interface {
	Next() (model.Fragment, error)
	Close() error
}

// SessionFactory opens sessions backed by an LLMProvider.
type SessionFactory struct {
	provider LLMProvider
}

// Interface compliance check.
var _ Opener = (*SessionFactory)(nil)

func NewSessionFactory(provider LLMProvider) *SessionFactory {
	return &SessionFactory{provider: provider}
}

// Open starts a new conversation with the given model.
func (f *SessionFactory) Open(ctx context.Context, modelName string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if modelName == "" {
		return nil, fmt.Errorf("llm: cannot open session: no model name")
	}
	s := &session{
		id:       uuid.NewString(),
		model:    modelName,
		provider: f.provider,
	}
	slog.Debug("Opened model session", "session_id", s.id, "provider", f.provider.Name(), "model", modelName)
	return s, nil
}

type session struct {
	id       string
	model    string
	provider LLMProvider

	mu      sync.Mutex
	history []model.Fragment
	active  *Generation
	closed  bool
}

func (s *session) ID() string { return s.id }

func (s *session) Append(text string, opts AppendOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.active != nil {
		return ErrGenerationActive
	}
	role := opts.Role
	if role == "" {
		role = model.RoleUser
	}
	s.history = append(s.history, model.Fragment{Text: text, Hidden: opts.Hidden, Role: role})
	return nil
}

func (s *session) Generate(opts GenerateOptions) (*Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.active != nil {
		return nil, ErrGenerationActive
	}
	role := opts.Role
	if role == "" {
		role = model.RoleAssistant
	}
	g := &Generation{session: s, role: role}
	s.active = g
	return g, nil
}

// Close ends the session and cancels a running generation.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	if s.active != nil && s.active.cancel != nil {
		s.active.cancel()
	}
	slog.Debug("Closed model session", "session_id", s.id)
	return nil
}

// request merges consecutive messages of the same role. Called with s.mu held.
func (s *session) request() *GenerateRequest {
	req := &GenerateRequest{Model: s.model}
	for _, f := range s.history {
		n := len(req.Messages)
		if n > 0 && req.Messages[n-1].Role == string(f.Role) {
			req.Messages[n-1].Content += f.Text
			continue
		}
		req.Messages = append(req.Messages, Message{Role: string(f.Role), Content: f.Text})
	}
	return req
}

// Generation is one model turn. Either Text or Stream may be called, once.
// When the turn completes its output joins the session history, so later
// prompts see it as context.
type Generation struct {
	session  *session
	role     model.Role
	started  bool
	finished bool
	cancel   context.CancelFunc
}

// Text runs the generation to completion and returns the generated text.
func (g *Generation) Text(ctx context.Context) (string, error) {
	ctx, req, _, err := g.begin(ctx)
	if err != nil {
		return "", err
	}
	resp, err := g.session.provider.Generate(ctx, req)
	if err != nil {
		g.finish("")
		return "", err
	}
	g.finish(resp.Response)
	return resp.Response, nil
}

// Stream starts the generation and returns its fragments. Messages already
// in the turn being continued (a priming prefix) come first, with their
// original visibility.
func (g *Generation) Stream(ctx context.Context) (FragmentStream, error) {
	ctx, req, prefix, err := g.begin(ctx)
	if err != nil {
		return nil, err
	}
	st := &fragmentStream{
		gen:     g,
		ch:      make(chan StreamResponse),
		errc:    make(chan error, 1),
		pending: prefix,
	}
	go func() {
		st.errc <- g.session.provider.GenerateStream(ctx, req, st.ch)
	}()
	return st, nil
}

func (g *Generation) begin(ctx context.Context) (context.Context, *GenerateRequest, []model.Fragment, error) {
	s := g.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, nil, ErrSessionClosed
	}
	if g.started || s.active != g {
		return nil, nil, nil, ErrGenerationUsed
	}
	g.started = true
	ctx, g.cancel = context.WithCancel(ctx)

	var prefix []model.Fragment
	for i := len(s.history) - 1; i >= 0 && s.history[i].Role == g.role; i-- {
		prefix = append([]model.Fragment{s.history[i]}, prefix...)
	}
	return ctx, s.request(), prefix, nil
}

func (g *Generation) finish(text string) {
	s := g.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.finished {
		return
	}
	g.finished = true
	g.cancel()
	if text != "" && !s.closed {
		s.history = append(s.history, model.Fragment{Text: text, Role: g.role})
	}
	if s.active == g {
		s.active = nil
	}
}

type fragmentStream struct {
	gen     *Generation
	ch      chan StreamResponse
	errc    chan error
	pending []model.Fragment
	text    strings.Builder
	err     error
	closed  bool
}

func (st *fragmentStream) Next() (model.Fragment, error) {
	if st.err != nil {
		return model.Fragment{}, st.err
	}
	if len(st.pending) > 0 {
		f := st.pending[0]
		st.pending = st.pending[1:]
		return f, nil
	}
	for {
		chunk, ok := <-st.ch
		if !ok {
			if err := <-st.errc; err != nil {
				st.err = err
				st.gen.finish("")
				return model.Fragment{}, err
			}
			st.err = io.EOF
			st.gen.finish(st.text.String())
			return model.Fragment{}, io.EOF
		}
		if chunk.Error != "" {
			st.err = fmt.Errorf("llm: %s", chunk.Error)
			st.gen.finish("")
			return model.Fragment{}, st.err
		}
		if chunk.Content == "" {
			continue
		}
		st.text.WriteString(chunk.Content)
		return model.Fragment{Text: chunk.Content, Role: st.gen.role}, nil
	}
}

// Close cancels the generation and waits for the provider to let go of the
// channel.
func (st *fragmentStream) Close() error {
	if st.closed {
		return nil
	}
	st.closed = true
	st.gen.cancel()
	for range st.ch {
	}
	if st.err == nil {
		st.gen.finish("")
	}
	st.err = ErrStreamClosed
	return nil
}
