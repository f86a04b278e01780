package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragqa/internal/contextpack"
	"ragqa/internal/domain"
)

// Fixed replies returned in place of an answer.
const (
	InvalidQuestionMessage = "Please enter a valid question."
	GenerationErrorMessage = "Sorry, an error occurred while generating the response."
	errorMessagePrefix     = "Sorry, an error occurred: "
)

// Stage is a step of the per-question state machine. A request moves
// forward through the stages in order and can only leave the sequence by
// reaching StageErrored.
type Stage int

const (
	StageReceived Stage = iota
	StageEmbedded
	StageRetrieved
	StageContextBuilt
	StageAnswered
	StageReturned
	StageErrored
)

var stageNames = [...]string{"received", "embedded", "retrieved", "context_built", "answered", "returned", "errored"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Answerer turns a question and a context block into an answer.
type Answerer interface {
	Generate(ctx context.Context, question, contextBlock string) (string, error)
}

// Options are the per-question retrieval knobs.
type Options struct {
	TopK        int
	TokenBudget int
}

// Pipeline answers questions: encode, search, pack context, generate.
// It keeps no per-request state and is safe for concurrent use.
type Pipeline struct {
	encoder  domain.Encoder
	index    domain.Index
	passages domain.Passages
	answerer Answerer
	opts     Options
	logger   *zap.Logger
}

// NewPipeline wires the components. The encoder and index must agree on
// the vector dimension.
func NewPipeline(encoder domain.Encoder, index domain.Index, passages domain.Passages, answerer Answerer, opts Options, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case encoder == nil:
		return nil, errors.New("pipeline needs an encoder")
	case index == nil:
		return nil, errors.New("pipeline needs an index")
	case passages == nil:
		return nil, errors.New("pipeline needs passages")
	case answerer == nil:
		return nil, errors.New("pipeline needs an answerer")
	}
	if opts.TopK <= 0 {
		return nil, fmt.Errorf("top k must be positive, got %d", opts.TopK)
	}
	if encoder.Dimension() != index.Dimension() {
		return nil, fmt.Errorf("encoder %s produces %d dimensions, index holds %d", encoder.Name(), encoder.Dimension(), index.Dimension())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if index.Len() != passages.Len() {
		logger.Warn("index and corpus sizes differ; out-of-range hits will be skipped",
			zap.Int("index", index.Len()), zap.Int("corpus", passages.Len()))
	}
	return &Pipeline{encoder: encoder, index: index, passages: passages, answerer: answerer, opts: opts, logger: logger}, nil
}

// Retrieval is what the pipeline found for one question.
type Retrieval struct {
	Neighbors []domain.Neighbor
	Passages  []string
	Skipped   int
	Context   string
	Words     int
}

// Result describes one pass through the pipeline. Answer is always set.
type Result struct {
	QueryID   string
	Answer    string
	Stage     Stage
	Retrieval *Retrieval
	Err       error
}

// Ask returns the answer text for question. It never fails: errors are
// logged and replaced by one of the fixed replies.
func (p *Pipeline) Ask(ctx context.Context, question string) string {
	return p.Answer(ctx, question).Answer
}

// Answer runs the full pipeline and reports how far it got.
func (p *Pipeline) Answer(ctx context.Context, question string) (res Result) {
	res = Result{QueryID: uuid.NewString(), Stage: StageReceived}
	if strings.TrimSpace(question) == "" {
		res.Err = domain.Wrap(domain.KindValidation, "validate question", errors.New("question is empty"))
		res.Answer = UserMessage(res.Err)
		res.Stage = StageReturned
		return res
	}

	log := p.logger.With(zap.String("query_id", res.QueryID))
	defer func() {
		if r := recover(); r != nil {
			kind := domain.KindRetrieval
			if res.Stage >= StageContextBuilt {
				kind = domain.KindGeneration
			}
			res.Err = domain.Wrap(kind, "pipeline", fmt.Errorf("panic: %v", r))
			res.Answer = UserMessage(res.Err)
			log.Error("query failed", zap.Stringer("last_stage", res.Stage), zap.Error(res.Err))
			res.Stage = StageErrored
		}
	}()

	r, err := p.retrieve(ctx, question, &res.Stage, log)
	res.Retrieval = r
	if err == nil {
		var answer string
		answer, err = p.answerer.Generate(ctx, question, r.Context)
		if err == nil {
			res.Stage = StageAnswered
			res.Answer = answer
			res.Stage = StageReturned
			log.Debug("query answered", zap.Int("neighbors", len(r.Neighbors)), zap.Int("context_words", r.Words))
			return res
		}
		if domain.KindOf(err) == "" {
			err = domain.Wrap(domain.KindGeneration, "generate answer", err)
		}
	}
	log.Error("query failed", zap.Stringer("last_stage", res.Stage), zap.Error(err))
	res.Err = err
	res.Answer = UserMessage(err)
	res.Stage = StageErrored
	return res
}

// Retrieve runs the encode, search and context steps only.
func (p *Pipeline) Retrieve(ctx context.Context, question string) (*Retrieval, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.Wrap(domain.KindValidation, "validate question", errors.New("question is empty"))
	}
	stage := StageReceived
	return p.retrieve(ctx, question, &stage, p.logger)
}

func (p *Pipeline) retrieve(ctx context.Context, question string, stage *Stage, log *zap.Logger) (*Retrieval, error) {
	vec, err := p.encoder.Encode(ctx, question)
	if err != nil {
		return nil, domain.Wrap(domain.KindRetrieval, "encode question", err)
	}
	*stage = StageEmbedded

	hits, err := p.index.Search(ctx, vec, p.opts.TopK)
	if err != nil {
		return nil, domain.Wrap(domain.KindRetrieval, "search index", err)
	}
	r := &Retrieval{Neighbors: hits, Passages: make([]string, 0, len(hits))}
	for _, h := range hits {
		text, ok := p.passages.Text(h.Index)
		if !ok {
			r.Skipped++
			continue
		}
		r.Passages = append(r.Passages, text)
	}
	if r.Skipped > 0 {
		log.Warn("skipped neighbors outside the corpus", zap.Int("skipped", r.Skipped), zap.Int("corpus", p.passages.Len()))
	}
	*stage = StageRetrieved

	packed := contextpack.Pack(r.Passages, p.opts.TokenBudget)
	r.Context = packed.Text
	r.Words = packed.Words
	*stage = StageContextBuilt
	return r, nil
}

// UserMessage maps an error to the reply shown in place of an answer.
func UserMessage(err error) string {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return InvalidQuestionMessage
	case domain.KindGeneration:
		return GenerationErrorMessage
	}
	return errorMessagePrefix + err.Error()
}
