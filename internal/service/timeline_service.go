package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	app_errors "timeline-ai/backend/internal/errors"
	"timeline-ai/backend/internal/llm"
	"timeline-ai/backend/internal/model"
)

const (
	classifierPromptFormat = "does \"%s\" refer to a historical event? (please just answer \"yes\" or \"no\", no other text including punctuation)\n"

	rejectionPrompt = "can you write a message politely declining to answer and explaining why it isn't a historical event? " +
		"Format the message as a json object with a single field \"rejection\" containing the message.\n"

	keyEventsPromptFormat = "What are the key events of the historical event: %s? Please include date or time information where possible.\n"

	reformulatePrompt = "\n\nCan you reformulate this timeline as a JSON object with a single \"events\" field, " +
		"with each object in \"events\" having 2 fields, one for the time range (\"timeRange\") and one for the " +
		"detailed description of the time frame (\"description\")?\n\n"

	// jsonPrimer is sent as the start of the assistant's answer so the model
	// continues inside a JSON code block.
	jsonPrimer = "```json\n"
)

// runState names the steps of a timeline run. Only used for logging.
type runState string

const (
	stateClassifying         runState = "classifying"
	stateGeneratingRejection runState = "generating-rejection"
	stateGeneratingTimeline  runState = "generating-timeline"
	stateStreaming           runState = "streaming"
	stateClosed              runState = "closed"
	stateError               runState = "error"
)

// TimelineConfig holds the models and preamble used by a timeline run.
type TimelineConfig struct {
	ClassifierModel string
	GeneratorModel  string
	SystemPrompt    string
}

type TimelineService struct {
	opener llm.Opener
	cfg    TimelineConfig
}

func NewTimelineService(opener llm.Opener, cfg TimelineConfig) *TimelineService {
	return &TimelineService{opener: opener, cfg: cfg}
}

// Start classifies the event and begins the matching generation: a JSON
// timeline for historical events, a JSON rejection otherwise. The returned
// stream owns the model session; the caller must Close it.
func (s *TimelineService) Start(ctx context.Context, event string) (llm.FragmentStream, error) {
	log := slog.With("event", event)

	log.Debug("Timeline run", "state", stateClassifying)
	historical, err := s.Classify(ctx, event)
	if err != nil {
		log.Debug("Timeline run", "state", stateError, "error", err)
		return nil, err
	}

	var stream llm.FragmentStream
	if historical {
		log.Debug("Timeline run", "state", stateGeneratingTimeline)
		stream, err = s.generateTimeline(ctx, event)
	} else {
		log.Debug("Timeline run", "state", stateGeneratingRejection)
		stream, err = s.generateRejection(ctx)
	}
	if err != nil {
		log.Debug("Timeline run", "state", stateError, "error", err)
		return nil, err
	}
	log.Debug("Timeline run", "state", stateStreaming)
	return stream, nil
}

// Classify asks the classifier model whether the event is historical. Only an
// exact "yes" (ignoring case and surrounding whitespace) counts.
func (s *TimelineService) Classify(ctx context.Context, event string) (bool, error) {
	session, err := s.open(ctx, s.cfg.ClassifierModel)
	if err != nil {
		return false, err
	}
	defer closeSession(session)

	if err := session.Append(fmt.Sprintf(classifierPromptFormat, event), llm.AppendOptions{Hidden: true}); err != nil {
		return false, backendError("could not send classifier prompt", err)
	}
	gen, err := session.Generate(llm.GenerateOptions{})
	if err != nil {
		return false, backendError("could not start classification", err)
	}
	reply, err := gen.Text(ctx)
	if err != nil {
		return false, backendError("classification failed", err)
	}
	historical := isAffirmative(reply)
	slog.Debug("Classified event", "session_id", session.ID(), "reply", reply, "historical", historical)
	return historical, nil
}

func (s *TimelineService) generateRejection(ctx context.Context) (llm.FragmentStream, error) {
	session, err := s.open(ctx, s.cfg.GeneratorModel)
	if err != nil {
		return nil, err
	}
	if err := session.Append(rejectionPrompt, llm.AppendOptions{Hidden: true}); err != nil {
		closeSession(session)
		return nil, backendError("could not send rejection prompt", err)
	}
	return s.stream(ctx, session)
}

func (s *TimelineService) generateTimeline(ctx context.Context, event string) (llm.FragmentStream, error) {
	session, err := s.open(ctx, s.cfg.GeneratorModel)
	if err != nil {
		return nil, err
	}

	// The first answer only serves as context for the reformulation.
	if err := session.Append(fmt.Sprintf(keyEventsPromptFormat, event), llm.AppendOptions{Hidden: true}); err != nil {
		closeSession(session)
		return nil, backendError("could not send key events prompt", err)
	}
	gen, err := session.Generate(llm.GenerateOptions{})
	if err != nil {
		closeSession(session)
		return nil, backendError("could not start key events generation", err)
	}
	if _, err := gen.Text(ctx); err != nil {
		closeSession(session)
		return nil, backendError("key events generation failed", err)
	}

	if err := session.Append(reformulatePrompt, llm.AppendOptions{Hidden: true}); err != nil {
		closeSession(session)
		return nil, backendError("could not send reformulation prompt", err)
	}
	if err := session.Append(jsonPrimer, llm.AppendOptions{Role: model.RoleAssistant, Hidden: true}); err != nil {
		closeSession(session)
		return nil, backendError("could not send json primer", err)
	}
	return s.stream(ctx, session)
}

// open opens a session and sends the system preamble.
func (s *TimelineService) open(ctx context.Context, modelName string) (llm.Session, error) {
	session, err := s.opener.Open(ctx, modelName)
	if err != nil {
		return nil, backendError("could not open model session", err)
	}
	if err := session.Append(s.cfg.SystemPrompt, llm.AppendOptions{Role: model.RoleSystem, Hidden: true}); err != nil {
		closeSession(session)
		return nil, backendError("could not send system prompt", err)
	}
	return session, nil
}

// stream starts the final streamed generation. On success the session is
// owned by the returned stream.
func (s *TimelineService) stream(ctx context.Context, session llm.Session) (llm.FragmentStream, error) {
	gen, err := session.Generate(llm.GenerateOptions{})
	if err != nil {
		closeSession(session)
		return nil, backendError("could not start generation", err)
	}
	st, err := gen.Stream(ctx)
	if err != nil {
		closeSession(session)
		return nil, backendError("could not start generation stream", err)
	}
	return &runStream{FragmentStream: st, session: session}, nil
}

// runStream closes its session along with the generation stream.
type runStream struct {
	llm.FragmentStream
	session llm.Session
	once    sync.Once
	err     error
}

func (r *runStream) Close() error {
	r.once.Do(func() {
		streamErr := r.FragmentStream.Close()
		sessionErr := r.session.Close()
		if streamErr != nil {
			r.err = streamErr
		} else {
			r.err = sessionErr
		}
		slog.Debug("Timeline run", "state", stateClosed, "session_id", r.session.ID())
	})
	return r.err
}

func isAffirmative(reply string) bool {
	return strings.ToLower(strings.TrimSpace(reply)) == "yes"
}

func backendError(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", app_errors.ErrBackend, msg, err)
}

func closeSession(session llm.Session) {
	if err := session.Close(); err != nil {
		slog.Warn("Failed to close model session", "session_id", session.ID(), "error", err)
	}
}
