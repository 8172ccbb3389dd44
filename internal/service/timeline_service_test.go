package service_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	app_errors "timeline-ai/backend/internal/errors"
	"timeline-ai/backend/internal/llm"
	mock_llm "timeline-ai/backend/internal/llm/mocks"
	"timeline-ai/backend/internal/model"
	"timeline-ai/backend/internal/service"
)

const (
	classifierModel = "classifier"
	generatorModel  = "generator"
	systemPrompt    = "You are a helpful assistant.\n\n"
)

// countingSession counts every Close call, including rejected second calls.
type countingSession struct {
	llm.Session
	closes atomic.Int32
}

func (s *countingSession) Close() error {
	s.closes.Add(1)
	return s.Session.Close()
}

// countingOpener records every session it hands out.
type countingOpener struct {
	factory *llm.SessionFactory
	failOn  string

	mu       sync.Mutex
	sessions []*countingSession
	models   []string
}

func (o *countingOpener) Open(ctx context.Context, modelName string) (llm.Session, error) {
	if modelName == o.failOn {
		return nil, errors.New("model not loaded")
	}
	s, err := o.factory.Open(ctx, modelName)
	if err != nil {
		return nil, err
	}
	cs := &countingSession{Session: s}
	o.mu.Lock()
	o.sessions = append(o.sessions, cs)
	o.models = append(o.models, modelName)
	o.mu.Unlock()
	return cs, nil
}

func (o *countingOpener) assertEachClosedOnce(t *testing.T) {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.sessions {
		assert.Equal(t, int32(1), s.closes.Load(), "session %d (%s) close count", i, o.models[i])
	}
}

func setupTimelineService(t *testing.T) (*service.TimelineService, *mock_llm.MockLLMProvider, *countingOpener) {
	provider := mock_llm.NewMockLLMProvider(t)
	provider.On("Name").Return("mock").Maybe()
	opener := &countingOpener{factory: llm.NewSessionFactory(provider)}
	svc := service.NewTimelineService(opener, service.TimelineConfig{
		ClassifierModel: classifierModel,
		GeneratorModel:  generatorModel,
		SystemPrompt:    systemPrompt,
	})
	return svc, provider, opener
}

func forModel(name string) interface{} {
	return mock.MatchedBy(func(req *llm.GenerateRequest) bool { return req.Model == name })
}

func expectClassification(provider *mock_llm.MockLLMProvider, reply string) {
	provider.On("Generate", mock.Anything, forModel(classifierModel)).
		Return(&llm.GenerateResponse{Response: reply}, nil).Once()
}

func streamChunks(chunks ...string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		ch := args.Get(2).(chan<- llm.StreamResponse)
		defer close(ch)
		for _, c := range chunks {
			ch <- llm.StreamResponse{Content: c}
		}
	}
}

func drain(t *testing.T, st llm.FragmentStream) []model.Fragment {
	t.Helper()
	var out []model.Fragment
	for {
		f, err := st.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, f)
	}
}

func TestTimelineService_Classify(t *testing.T) {
	testCases := []struct {
		reply string
		want  bool
	}{
		{"yes", true},
		{" Yes \n", true},
		{"YES", true},
		{"Yes.", false},
		{"", false},
		{"I think so", false},
		{"no", false},
	}

	for _, tc := range testCases {
		t.Run("Reply "+tc.reply, func(t *testing.T) {
			svc, provider, opener := setupTimelineService(t)
			provider.On("Generate", mock.Anything, &llm.GenerateRequest{
				Model: classifierModel,
				Messages: []llm.Message{
					{Role: "system", Content: systemPrompt},
					{Role: "user", Content: "does \"The Sinking of the Titanic\" refer to a historical event? " +
						"(please just answer \"yes\" or \"no\", no other text including punctuation)\n"},
				},
			}).Return(&llm.GenerateResponse{Response: tc.reply}, nil).Once()

			historical, err := svc.Classify(context.Background(), "The Sinking of the Titanic")

			require.NoError(t, err)
			assert.Equal(t, tc.want, historical)
			opener.assertEachClosedOnce(t)
		})
	}
}

func TestTimelineService_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("Historical event streams a timeline", func(t *testing.T) {
		svc, provider, opener := setupTimelineService(t)
		expectClassification(provider, "yes")
		provider.On("Generate", mock.Anything, forModel(generatorModel)).
			Return(&llm.GenerateResponse{Response: "April 10, 1912: departure"}, nil).Once()
		provider.On("GenerateStream", mock.Anything, &llm.GenerateRequest{
			Model: generatorModel,
			Messages: []llm.Message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: "What are the key events of the historical event: The Sinking of the Titanic? " +
					"Please include date or time information where possible.\n"},
				{Role: "assistant", Content: "April 10, 1912: departure"},
				{Role: "user", Content: "\n\nCan you reformulate this timeline as a JSON object with a single \"events\" field, " +
					"with each object in \"events\" having 2 fields, one for the time range (\"timeRange\") and one for the " +
					"detailed description of the time frame (\"description\")?\n\n"},
				{Role: "assistant", Content: "```json\n"},
			},
		}, mock.Anything).Run(streamChunks(`{"events":[`, `]}`)).Return(nil).Once()

		stream, err := svc.Start(ctx, "The Sinking of the Titanic")
		require.NoError(t, err)
		frags := drain(t, stream)
		require.NoError(t, stream.Close())

		require.Len(t, frags, 3)
		assert.True(t, frags[0].Hidden)
		assert.Equal(t, "```json\n", frags[0].Text)
		assert.False(t, frags[1].Hidden)
		assert.Equal(t, []string{classifierModel, generatorModel}, opener.models)
		opener.assertEachClosedOnce(t)
	})

	t.Run("Non-historical event streams a rejection", func(t *testing.T) {
		svc, provider, opener := setupTimelineService(t)
		expectClassification(provider, "no")
		provider.On("GenerateStream", mock.Anything, &llm.GenerateRequest{
			Model: generatorModel,
			Messages: []llm.Message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: "can you write a message politely declining to answer and explaining why it isn't " +
					"a historical event? Format the message as a json object with a single field \"rejection\" containing the message.\n"},
			},
		}, mock.Anything).Run(streamChunks(`{"rejection":"Sorry"}`)).Return(nil).Once()

		stream, err := svc.Start(ctx, "my breakfast")
		require.NoError(t, err)
		frags := drain(t, stream)
		require.NoError(t, stream.Close())

		assert.Equal(t, []model.Fragment{{Text: `{"rejection":"Sorry"}`, Role: model.RoleAssistant}}, frags)
		opener.assertEachClosedOnce(t)
	})

	t.Run("Closing early closes the session once", func(t *testing.T) {
		svc, provider, opener := setupTimelineService(t)
		expectClassification(provider, "no")
		provider.On("GenerateStream", mock.Anything, forModel(generatorModel), mock.Anything).
			Run(func(args mock.Arguments) {
				ctx := args.Get(0).(context.Context)
				defer close(args.Get(2).(chan<- llm.StreamResponse))
				<-ctx.Done()
			}).Return(context.Canceled).Once()

		stream, err := svc.Start(ctx, "my breakfast")
		require.NoError(t, err)

		require.NoError(t, stream.Close())
		require.NoError(t, stream.Close())
		opener.assertEachClosedOnce(t)
	})

	t.Run("Failure - Classifier backend error", func(t *testing.T) {
		svc, provider, opener := setupTimelineService(t)
		provider.On("Generate", mock.Anything, forModel(classifierModel)).
			Return(nil, errors.New("connection refused")).Once()

		stream, err := svc.Start(ctx, "The Sinking of the Titanic")

		assert.Nil(t, stream)
		assert.ErrorIs(t, err, app_errors.ErrBackend)
		assert.ErrorContains(t, err, "connection refused")
		// No primary session is opened after a failed classification.
		assert.Equal(t, []string{classifierModel}, opener.models)
		opener.assertEachClosedOnce(t)
	})

	t.Run("Failure - Key events generation error", func(t *testing.T) {
		svc, provider, opener := setupTimelineService(t)
		expectClassification(provider, "yes")
		provider.On("Generate", mock.Anything, forModel(generatorModel)).
			Return(nil, errors.New("out of memory")).Once()

		_, err := svc.Start(ctx, "The Sinking of the Titanic")

		assert.ErrorIs(t, err, app_errors.ErrBackend)
		assert.Len(t, opener.sessions, 2)
		opener.assertEachClosedOnce(t)
	})

	t.Run("Failure - Generator cannot be opened", func(t *testing.T) {
		svc, provider, opener := setupTimelineService(t)
		opener.failOn = generatorModel
		expectClassification(provider, "no")

		_, err := svc.Start(ctx, "my breakfast")

		assert.ErrorIs(t, err, app_errors.ErrBackend)
		assert.ErrorContains(t, err, "model not loaded")
		opener.assertEachClosedOnce(t)
	})
}
