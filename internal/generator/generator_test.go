package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragqa/internal/domain"
)

type fakeLLM struct {
	reply string
	err   error
	block bool
	got   domain.CompletionRequest
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	f.got = req
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages("What is the capital of France?", "- Paris is the capital of France.")
	require.Len(t, msgs, 2)

	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "expert teacher")
	assert.Contains(t, msgs[0].Content, "concise")

	assert.Equal(t, domain.RoleUser, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "Question: What is the capital of France?")
	assert.Contains(t, msgs[1].Content, "Context:\n- Paris is the capital of France.\n")
	assert.Contains(t, msgs[1].Content, `"`+InsufficientContext+`"`)
}

func TestBuildMessagesToleratesEmptyContext(t *testing.T) {
	msgs := BuildMessages("Who wrote Hamlet?", "")
	assert.Contains(t, msgs[1].Content, "Context:\n\n")
}

func TestGenerate(t *testing.T) {
	llm := &fakeLLM{reply: "Paris."}
	g, err := New(llm, 300, time.Second)
	require.NoError(t, err)

	got, err := g.Generate(context.Background(), "q", "- ctx")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", got)
	assert.Equal(t, 300, llm.got.MaxTokens)
	assert.Len(t, llm.got.Messages, 2)
}

func TestGenerateWrapsFailures(t *testing.T) {
	llm := &fakeLLM{err: errors.New("dial tcp: connection refused")}
	g, err := New(llm, 300, time.Second)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "q", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGenerateTimesOut(t *testing.T) {
	g, err := New(&fakeLLM{block: true}, 300, 20*time.Millisecond)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "q", "")
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, 300, 0)
	assert.Error(t, err)

	_, err = New(&fakeLLM{}, 0, 0)
	assert.Error(t, err)
}
