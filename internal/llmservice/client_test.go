package llmservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"

	"ragchat/internal/models"
)

type recordingLLM struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	reply    string
	err      error
}

func (r *recordingLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	r.messages = messages
	for _, o := range options {
		o(&r.opts)
	}
	if r.err != nil {
		return nil, r.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: r.reply}}}, nil
}

func (r *recordingLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, r, prompt, options...)
}

func TestGenerateContentPassesOptions(t *testing.T) {
	rec := &recordingLLM{reply: "answer"}
	g := New(rec, "gpt-4.1", time.Second)

	out, err := g.GenerateContent(context.Background(), "answer question", Request{
		System:      "only use context",
		User:        "what is it?",
		Temperature: 0.7,
		MaxTokens:   800,
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", out)

	assert.Equal(t, "gpt-4.1", rec.opts.Model)
	assert.Equal(t, 0.7, rec.opts.Temperature)
	assert.Equal(t, 800, rec.opts.MaxTokens)
	require.Len(t, rec.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, rec.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, rec.messages[1].Role)
	assert.Equal(t, llms.TextContent{Text: "what is it?"}, rec.messages[1].Parts[0])
}

func TestGenerateContentModelOverride(t *testing.T) {
	rec := &recordingLLM{reply: "ok"}
	g := New(rec, "gpt-4.1", 0)

	_, err := g.GenerateContent(context.Background(), "answer question", Request{User: "q", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", rec.opts.Model)
	assert.Len(t, rec.messages, 1)
}

func TestGenerateContentStripsThinking(t *testing.T) {
	g := New(fake.NewFakeLLM([]string{"<think>\nlet me reason\n</think>\n\nThe answer is 42."}), "m", 0)

	out, err := g.GenerateContent(context.Background(), "answer question", Request{User: "q"})
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", out)
}

func TestGenerateContentFailure(t *testing.T) {
	g := New(&recordingLLM{err: errors.New("upstream 500")}, "m", 0)

	_, err := g.GenerateContent(context.Background(), "answer question", Request{User: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrGenerationFailure)
	assert.Contains(t, err.Error(), "answer question")
}
