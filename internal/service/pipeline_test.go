package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ragqa/internal/corpus"
	"ragqa/internal/domain"
	"ragqa/internal/embedding/meanpool"
	"ragqa/internal/embedding/openai"
	"ragqa/internal/vectorstore/memory"
)

type fakeEncoder struct {
	dim   int
	calls int
	vecs  map[string][]float32
	err   error
}

func (f *fakeEncoder) Name() string   { return "fake" }
func (f *fakeEncoder) Dimension() int { return f.dim }
func (f *fakeEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	return make([]float32, f.dim), nil
}

type fakeIndex struct {
	dim  int
	hits []domain.Neighbor
}

func (f *fakeIndex) Dimension() int { return f.dim }
func (f *fakeIndex) Len() int       { return len(f.hits) }
func (f *fakeIndex) Search(context.Context, []float32, int) ([]domain.Neighbor, error) {
	return f.hits, nil
}

type fakeAnswerer struct {
	answer   string
	err      error
	contexts []string
	panicMsg string
}

func (f *fakeAnswerer) Generate(_ context.Context, _ string, contextBlock string) (string, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.contexts = append(f.contexts, contextBlock)
	return f.answer, f.err
}

var parisPassages = []string{
	"Paris is the capital of France.",
	"The Nile is a river in Africa.",
	"Python is a programming language.",
}

func parisFixture(t *testing.T) (*fakeEncoder, *memory.Index, *corpus.Corpus) {
	t.Helper()
	enc := &fakeEncoder{dim: 2, vecs: map[string][]float32{
		"What is the capital of France?": {0.1, 0},
	}}
	idx, err := memory.Build([][]float32{{0, 0}, {1, 1}, {5, 5}})
	require.NoError(t, err)
	c, err := corpus.New("Text", parisPassages)
	require.NoError(t, err)
	return enc, idx, c
}

func TestAnswerGroundsOnNearestPassages(t *testing.T) {
	enc, idx, c := parisFixture(t)
	ans := &fakeAnswerer{answer: "Paris."}
	p, err := NewPipeline(enc, idx, c, ans, Options{TopK: 2, TokenBudget: 100}, zap.NewNop())
	require.NoError(t, err)

	res := p.Answer(context.Background(), "What is the capital of France?")
	require.NoError(t, res.Err)
	assert.Equal(t, "Paris.", res.Answer)
	assert.Equal(t, StageReturned, res.Stage)
	assert.NotEmpty(t, res.QueryID)

	require.NotNil(t, res.Retrieval)
	assert.Equal(t, []string{parisPassages[0], parisPassages[1]}, res.Retrieval.Passages)
	require.Len(t, ans.contexts, 1)
	assert.Equal(t, "- Paris is the capital of France.\n- The Nile is a river in Africa.", ans.contexts[0])
}

func TestAnswerRespectsWordBudget(t *testing.T) {
	enc, idx, c := parisFixture(t)
	ans := &fakeAnswerer{answer: "Paris."}
	// The first passage is six words, the second would bring it to thirteen.
	p, err := NewPipeline(enc, idx, c, ans, Options{TopK: 3, TokenBudget: 8}, nil)
	require.NoError(t, err)

	res := p.Answer(context.Background(), "What is the capital of France?")
	require.NoError(t, res.Err)
	assert.Equal(t, "- Paris is the capital of France.", ans.contexts[0])
	assert.Equal(t, 6, res.Retrieval.Words)
}

func TestAnswerWithMeanPoolEncoder(t *testing.T) {
	kb := []string{
		"Paris is the capital of France.",
		"Mount Everest is the tallest mountain.",
		"The Nile is the longest river.",
	}
	model, err := meanpool.NewModel(384, 1)
	require.NoError(t, err)
	enc, err := meanpool.New(model, 512)
	require.NoError(t, err)
	vecs, err := enc.EncodeBatch(context.Background(), kb)
	require.NoError(t, err)
	idx, err := memory.Build(vecs)
	require.NoError(t, err)
	c, err := corpus.New("Text", kb)
	require.NoError(t, err)

	ans := &fakeAnswerer{answer: "Paris is the capital of France."}
	p, err := NewPipeline(enc, idx, c, ans, Options{TopK: 1, TokenBudget: 1536}, nil)
	require.NoError(t, err)

	res := p.Answer(context.Background(), "What is the capital of France?")
	require.NoError(t, res.Err)
	require.Len(t, res.Retrieval.Neighbors, 1)
	assert.Equal(t, 0, res.Retrieval.Neighbors[0].Index)
	assert.Equal(t, []string{"- Paris is the capital of France."}, ans.contexts)
	assert.Contains(t, res.Answer, "Paris")
}

func TestAnswerRejectsBlankQuestion(t *testing.T) {
	enc, idx, c := parisFixture(t)
	ans := &fakeAnswerer{}
	p, err := NewPipeline(enc, idx, c, ans, Options{TopK: 3}, nil)
	require.NoError(t, err)

	for _, q := range []string{"", "   ", "\t\n"} {
		res := p.Answer(context.Background(), q)
		assert.Equal(t, InvalidQuestionMessage, res.Answer)
		assert.ErrorIs(t, res.Err, domain.ErrValidation)
	}
	assert.Zero(t, enc.calls)
	assert.Empty(t, ans.contexts)
}

func TestAnswerIsolatesGenerationFailure(t *testing.T) {
	enc, idx, c := parisFixture(t)
	core, logs := observer.New(zap.ErrorLevel)
	ans := &fakeAnswerer{err: errors.New("connection refused")}
	p, err := NewPipeline(enc, idx, c, ans, Options{TopK: 3, TokenBudget: 100}, zap.New(core))
	require.NoError(t, err)

	res := p.Answer(context.Background(), "What is the capital of France?")
	assert.Equal(t, GenerationErrorMessage, res.Answer)
	assert.Equal(t, StageErrored, res.Stage)
	assert.ErrorIs(t, res.Err, domain.ErrGeneration)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "context_built", fields["last_stage"])
	assert.Equal(t, res.QueryID, fields["query_id"])
}

func TestAnswerReportsRetrievalFailure(t *testing.T) {
	enc, idx, c := parisFixture(t)
	enc.err = errors.New("model not loaded")
	ans := &fakeAnswerer{}
	p, err := NewPipeline(enc, idx, c, ans, Options{TopK: 3}, nil)
	require.NoError(t, err)

	res := p.Answer(context.Background(), "anything")
	assert.True(t, strings.HasPrefix(res.Answer, "Sorry, an error occurred: "))
	assert.Contains(t, res.Answer, "model not loaded")
	assert.ErrorIs(t, res.Err, domain.ErrRetrieval)
	assert.Empty(t, ans.contexts)
}

func TestAnswerSkipsOutOfRangeNeighbors(t *testing.T) {
	c, err := corpus.New("Text", parisPassages)
	require.NoError(t, err)
	idx := &fakeIndex{dim: 2, hits: []domain.Neighbor{{Index: 7}, {Index: 2}, {Index: -1}}}
	core, logs := observer.New(zap.WarnLevel)
	ans := &fakeAnswerer{answer: "ok"}
	p, err := NewPipeline(&fakeEncoder{dim: 2}, idx, c, ans, Options{TopK: 3, TokenBudget: 100}, zap.New(core))
	require.NoError(t, err)

	res := p.Answer(context.Background(), "language?")
	require.NoError(t, res.Err)
	assert.Equal(t, []string{parisPassages[2]}, res.Retrieval.Passages)
	assert.Equal(t, 2, res.Retrieval.Skipped)
	assert.Equal(t, 1, logs.FilterMessage("skipped neighbors outside the corpus").Len())
}

func TestAnswerIsRepeatable(t *testing.T) {
	enc, idx, c := parisFixture(t)
	ans := &fakeAnswerer{answer: "Paris."}
	p, err := NewPipeline(enc, idx, c, ans, Options{TopK: 2, TokenBudget: 100}, nil)
	require.NoError(t, err)

	q := "What is the capital of France?"
	first := p.Ask(context.Background(), q)
	second := p.Ask(context.Background(), q)
	assert.Equal(t, first, second)
	require.Len(t, ans.contexts, 2)
	assert.Equal(t, ans.contexts[0], ans.contexts[1])
}

func TestAnswerRecoversFromAnswererPanic(t *testing.T) {
	enc, idx, c := parisFixture(t)
	p, err := NewPipeline(enc, idx, c, &fakeAnswerer{panicMsg: "boom"}, Options{TopK: 1}, nil)
	require.NoError(t, err)

	res := p.Answer(context.Background(), "What is the capital of France?")
	assert.Equal(t, StageErrored, res.Stage)
	assert.Equal(t, GenerationErrorMessage, res.Answer)
	assert.ErrorIs(t, res.Err, domain.ErrGeneration)
}

type panicIndex struct{ fakeIndex }

func (panicIndex) Search(context.Context, []float32, int) ([]domain.Neighbor, error) {
	panic("index corrupted")
}

func TestAnswerRecoversFromRetrievalPanic(t *testing.T) {
	c, err := corpus.New("Text", parisPassages)
	require.NoError(t, err)
	idx := &panicIndex{fakeIndex{dim: 2}}
	p, err := NewPipeline(&fakeEncoder{dim: 2}, idx, c, &fakeAnswerer{}, Options{TopK: 1}, nil)
	require.NoError(t, err)

	res := p.Answer(context.Background(), "anything")
	assert.Equal(t, StageErrored, res.Stage)
	assert.ErrorIs(t, res.Err, domain.ErrRetrieval)
	assert.Contains(t, res.Answer, "index corrupted")
}

func TestAnswerCallsRemoteEncoderOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0]}]}`))
	}))
	defer srv.Close()

	enc, err := openai.NewClient(openai.Config{BaseURL: srv.URL, Dimension: 2})
	require.NoError(t, err)
	_, idx, c := parisFixture(t)
	ans := &fakeAnswerer{answer: "ok"}
	p, err := NewPipeline(enc, idx, c, ans, Options{TopK: 1, TokenBudget: 100}, nil)
	require.NoError(t, err)

	res := p.Answer(context.Background(), "What is the capital of France?")
	assert.ErrorIs(t, res.Err, domain.ErrRetrieval)
	assert.Contains(t, res.Answer, "503")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, ans.contexts)
}

func TestNewPipelineValidates(t *testing.T) {
	enc, idx, c := parisFixture(t)
	ans := &fakeAnswerer{}

	_, err := NewPipeline(enc, idx, c, ans, Options{TopK: 0}, nil)
	assert.Error(t, err)

	_, err = NewPipeline(&fakeEncoder{dim: 3}, idx, c, ans, Options{TopK: 1}, nil)
	assert.ErrorContains(t, err, "3 dimensions")

	_, err = NewPipeline(enc, idx, c, nil, Options{TopK: 1}, nil)
	assert.Error(t, err)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "received", StageReceived.String())
	assert.Equal(t, "errored", StageErrored.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
}
