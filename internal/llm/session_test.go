package llm_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"timeline-ai/backend/internal/llm"
	mock_llm "timeline-ai/backend/internal/llm/mocks"
	"timeline-ai/backend/internal/model"
)

func setupSession(t *testing.T) (llm.Session, *mock_llm.MockLLMProvider) {
	provider := mock_llm.NewMockLLMProvider(t)
	provider.On("Name").Return("mock").Maybe()

	session, err := llm.NewSessionFactory(provider).Open(context.Background(), "test-model")
	require.NoError(t, err)
	return session, provider
}

// streamChunks makes a GenerateStream expectation push the given chunks and
// close the channel, as every provider must.
func streamChunks(chunks ...string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		ch := args.Get(2).(chan<- llm.StreamResponse)
		defer close(ch)
		for _, c := range chunks {
			ch <- llm.StreamResponse{Content: c}
		}
	}
}

func drain(t *testing.T, st llm.FragmentStream) ([]model.Fragment, error) {
	t.Helper()
	var out []model.Fragment
	for {
		f, err := st.Next()
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}

func TestSessionFactory_Open(t *testing.T) {
	provider := mock_llm.NewMockLLMProvider(t)
	provider.On("Name").Return("mock").Maybe()
	factory := llm.NewSessionFactory(provider)

	t.Run("Success", func(t *testing.T) {
		s1, err := factory.Open(context.Background(), "m")
		require.NoError(t, err)
		s2, err := factory.Open(context.Background(), "m")
		require.NoError(t, err)
		assert.NotEqual(t, s1.ID(), s2.ID())
	})

	t.Run("Failure - Empty model", func(t *testing.T) {
		_, err := factory.Open(context.Background(), "")
		assert.Error(t, err)
	})

	t.Run("Failure - Cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := factory.Open(ctx, "m")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSession_Close(t *testing.T) {
	session, _ := setupSession(t)

	require.NoError(t, session.Close())
	assert.ErrorIs(t, session.Close(), llm.ErrSessionClosed)
	assert.ErrorIs(t, session.Append("hi", llm.AppendOptions{}), llm.ErrSessionClosed)
	_, err := session.Generate(llm.GenerateOptions{})
	assert.ErrorIs(t, err, llm.ErrSessionClosed)
}

func TestGeneration_Text(t *testing.T) {
	ctx := context.Background()
	session, provider := setupSession(t)
	defer func() { _ = session.Close() }()

	require.NoError(t, session.Append("You are a helpful assistant.\n\n", llm.AppendOptions{Role: model.RoleSystem}))
	require.NoError(t, session.Append("first ", llm.AppendOptions{Hidden: true}))
	require.NoError(t, session.Append("question", llm.AppendOptions{Hidden: true}))

	provider.On("Generate", mock.Anything, &llm.GenerateRequest{
		Model: "test-model",
		Messages: []llm.Message{
			{Role: "system", Content: "You are a helpful assistant.\n\n"},
			{Role: "user", Content: "first question"},
		},
	}).Return(&llm.GenerateResponse{Response: "an answer"}, nil).Once()

	gen, err := session.Generate(llm.GenerateOptions{})
	require.NoError(t, err)
	text, err := gen.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "an answer", text)

	_, err = gen.Text(ctx)
	assert.ErrorIs(t, err, llm.ErrGenerationUsed)

	// The reply is now part of the conversation.
	require.NoError(t, session.Append("follow-up", llm.AppendOptions{}))
	provider.On("Generate", mock.Anything, mock.MatchedBy(func(req *llm.GenerateRequest) bool {
		return len(req.Messages) == 4 &&
			req.Messages[2] == llm.Message{Role: "assistant", Content: "an answer"} &&
			req.Messages[3] == llm.Message{Role: "user", Content: "follow-up"}
	})).Return(&llm.GenerateResponse{Response: "more"}, nil).Once()

	gen, err = session.Generate(llm.GenerateOptions{})
	require.NoError(t, err)
	_, err = gen.Text(ctx)
	require.NoError(t, err)
}

func TestGeneration_Text_ProviderError(t *testing.T) {
	session, provider := setupSession(t)
	defer func() { _ = session.Close() }()

	provider.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused")).Once()

	gen, err := session.Generate(llm.GenerateOptions{})
	require.NoError(t, err)
	_, err = gen.Text(context.Background())
	assert.ErrorContains(t, err, "connection refused")

	// A failed generation releases the session for the next turn.
	assert.NoError(t, session.Append("retry", llm.AppendOptions{}))
}

func TestGeneration_Stream(t *testing.T) {
	t.Run("Priming prefix comes first, hidden", func(t *testing.T) {
		session, provider := setupSession(t)
		defer func() { _ = session.Close() }()

		require.NoError(t, session.Append("format as json", llm.AppendOptions{Hidden: true}))
		require.NoError(t, session.Append("```json\n", llm.AppendOptions{Role: model.RoleAssistant, Hidden: true}))

		provider.On("GenerateStream", mock.Anything, mock.MatchedBy(func(req *llm.GenerateRequest) bool {
			last := req.Messages[len(req.Messages)-1]
			return last.Role == "assistant" && last.Content == "```json\n"
		}), mock.Anything).Run(streamChunks(`{"events"`, "", `:[]}`)).Return(nil).Once()

		gen, err := session.Generate(llm.GenerateOptions{})
		require.NoError(t, err)
		st, err := gen.Stream(context.Background())
		require.NoError(t, err)

		frags, err := drain(t, st)
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, []model.Fragment{
			{Text: "```json\n", Hidden: true, Role: model.RoleAssistant},
			{Text: `{"events"`, Role: model.RoleAssistant},
			{Text: `:[]}`, Role: model.RoleAssistant},
		}, frags)
		assert.NoError(t, st.Close())

		// Next turn is accepted once the stream completed.
		assert.NoError(t, session.Append("thanks", llm.AppendOptions{}))
	})

	t.Run("Provider error ends the stream", func(t *testing.T) {
		session, provider := setupSession(t)
		defer func() { _ = session.Close() }()

		provider.On("GenerateStream", mock.Anything, mock.Anything, mock.Anything).
			Run(streamChunks("partial")).Return(errors.New("backend went away")).Once()

		gen, err := session.Generate(llm.GenerateOptions{})
		require.NoError(t, err)
		st, err := gen.Stream(context.Background())
		require.NoError(t, err)

		frags, err := drain(t, st)
		assert.Len(t, frags, 1)
		assert.ErrorContains(t, err, "backend went away")
		assert.NoError(t, st.Close())
	})

	t.Run("Close mid-stream cancels the provider", func(t *testing.T) {
		session, provider := setupSession(t)
		defer func() { _ = session.Close() }()

		provider.On("GenerateStream", mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				ctx := args.Get(0).(context.Context)
				ch := args.Get(2).(chan<- llm.StreamResponse)
				defer close(ch)
				ch <- llm.StreamResponse{Content: "one"}
				<-ctx.Done()
			}).Return(context.Canceled).Once()

		gen, err := session.Generate(llm.GenerateOptions{})
		require.NoError(t, err)
		st, err := gen.Stream(context.Background())
		require.NoError(t, err)

		f, err := st.Next()
		require.NoError(t, err)
		assert.Equal(t, "one", f.Text)

		require.NoError(t, st.Close())
		_, err = st.Next()
		assert.ErrorIs(t, err, llm.ErrStreamClosed)
		assert.NoError(t, st.Close())
	})

	t.Run("Session close cancels the provider", func(t *testing.T) {
		session, provider := setupSession(t)

		provider.On("GenerateStream", mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				ctx := args.Get(0).(context.Context)
				defer close(args.Get(2).(chan<- llm.StreamResponse))
				<-ctx.Done()
			}).Return(context.Canceled).Once()

		gen, err := session.Generate(llm.GenerateOptions{})
		require.NoError(t, err)
		st, err := gen.Stream(context.Background())
		require.NoError(t, err)

		require.NoError(t, session.Close())
		_, err = st.Next()
		assert.ErrorIs(t, err, context.Canceled)
		assert.NoError(t, st.Close())
	})
}

func TestSession_SingleActiveGeneration(t *testing.T) {
	session, _ := setupSession(t)
	defer func() { _ = session.Close() }()

	_, err := session.Generate(llm.GenerateOptions{})
	require.NoError(t, err)

	_, err = session.Generate(llm.GenerateOptions{})
	assert.ErrorIs(t, err, llm.ErrGenerationActive)
	assert.ErrorIs(t, session.Append("x", llm.AppendOptions{}), llm.ErrGenerationActive)
}
