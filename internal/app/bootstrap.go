// Package app assembles the pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ragqa/internal/config"
	"ragqa/internal/corpus"
	"ragqa/internal/domain"
	"ragqa/internal/embedding/meanpool"
	"ragqa/internal/embedding/openai"
	"ragqa/internal/embedstore"
	"ragqa/internal/generator"
	chat "ragqa/internal/generator/openai"
	"ragqa/internal/service"
	"ragqa/internal/vectorstore/memory"
	"ragqa/internal/vectorstore/qdrant"
)

// Runtime holds everything built at startup. It is not modified after
// Bootstrap returns and may be shared by any number of frontends.
type Runtime struct {
	Config   *config.AppConfig
	Corpus   *corpus.Corpus
	Store    *embedstore.Store
	Encoder  domain.Encoder
	Index    domain.Index
	Pipeline *service.Pipeline
}

// Bootstrap loads the corpus and embeddings, builds the index and wires
// the pipeline. Every failure is a KindStartup error.
func Bootstrap(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fail := func(op string, err error) (*Runtime, error) {
		return nil, domain.Wrap(domain.KindStartup, op, err)
	}

	if err := cfg.Validate(); err != nil {
		return fail("validate config", err)
	}
	apiKey, err := cfg.Generator.APIKey()
	if err != nil {
		return fail("read generator credential", err)
	}

	c, err := corpus.Load(cfg.Corpus.Path, cfg.Corpus.TextColumn, cfg.Corpus.Sheet)
	if err != nil {
		return fail("load corpus", err)
	}
	logger.Info("corpus loaded", zap.String("path", cfg.Corpus.Path), zap.Int("passages", c.Len()))

	enc, err := NewEncoder(ctx, cfg.Encoder, 0)
	if err != nil {
		return fail("build encoder", err)
	}

	store, err := embedstore.Load(cfg.Embeddings.Path, cfg.Embeddings.Format)
	if err != nil {
		return fail("load embeddings", err)
	}
	logger.Info("embeddings loaded",
		zap.String("path", cfg.Embeddings.Path),
		zap.Int("vectors", store.Len()),
		zap.Int("dimension", store.Dimension))
	if store.Dimension != enc.Dimension() {
		return fail("check dimensions", fmt.Errorf("embeddings have %d dimensions but encoder %s produces %d; re-run ragqa embed",
			store.Dimension, enc.Name(), enc.Dimension()))
	}
	if store.Model != "" && store.Model != enc.Name() {
		logger.Warn("embeddings were produced by a different encoder",
			zap.String("store_model", store.Model), zap.String("encoder", enc.Name()))
	}
	if store.Len() != c.Len() {
		logger.Warn("corpus and embeddings differ in length",
			zap.Int("passages", c.Len()), zap.Int("vectors", store.Len()))
	}

	idx, err := newIndex(ctx, cfg.Index, store.Vectors)
	if err != nil {
		return fail("build index", err)
	}

	llm, err := chat.NewClient(chat.Config{
		BaseURL:    cfg.Generator.BaseURL,
		APIKey:     apiKey,
		Model:      cfg.Generator.Model,
		MaxRetries: cfg.Generator.MaxRetries,
		RetryDelay: cfg.Generator.RetryDelay(),
	})
	if err != nil {
		return fail("build generator", err)
	}
	answerer, err := generator.New(llm, cfg.Generator.MaxTokens, cfg.Generator.Timeout())
	if err != nil {
		return fail("build generator", err)
	}

	p, err := service.NewPipeline(enc, idx, c, answerer, service.Options{
		TopK:        cfg.Retrieval.TopK,
		TokenBudget: cfg.Retrieval.TokenBudget,
	}, logger)
	if err != nil {
		return fail("build pipeline", err)
	}
	logger.Info("pipeline ready",
		zap.String("encoder", enc.Name()),
		zap.String("index", cfg.Index.Type),
		zap.String("generator", llm.Name()))

	return &Runtime{Config: cfg, Corpus: c, Store: store, Encoder: enc, Index: idx, Pipeline: p}, nil
}

// NewEncoder builds the configured encoder. Remote encoders are probed so
// their dimension is known before use; retries applies to remote calls and
// is zero for the encoder that serves questions.
func NewEncoder(ctx context.Context, cfg config.EncoderConfig, retries int) (domain.Encoder, error) {
	switch cfg.Type {
	case "meanpool":
		mc := cfg.MeanPool
		if mc == nil {
			return nil, errors.New("encoder.meanpool section missing")
		}
		var (
			model *meanpool.Model
			err   error
		)
		switch {
		case mc.VocabPath != "":
			model, err = meanpool.LoadModel(mc.VocabPath, mc.Dimension, mc.Seed)
		case mc.Hashed:
			model, err = meanpool.NewModel(mc.Dimension, mc.Seed)
		default:
			err = errors.New("encoder.meanpool needs vocab_path, or hashed: true for untrained vectors")
		}
		if err != nil {
			return nil, err
		}
		return meanpool.New(model, mc.MaxTokens)
	case "openai":
		oc := cfg.OpenAI
		if oc == nil {
			return nil, errors.New("encoder.openai section missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    oc.BaseURL,
			APIKeyEnv:  oc.APIKeyEnv,
			Model:      oc.Model,
			Timeout:    time.Duration(oc.TimeoutSecs) * time.Second,
			Dimension:  oc.Dimension,
			MaxRetries: retries,
		})
		if err != nil {
			return nil, err
		}
		if _, err := client.Probe(ctx); err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("unknown encoder type %q", cfg.Type)
}

func newIndex(ctx context.Context, cfg config.IndexConfig, vectors [][]float32) (domain.Index, error) {
	switch cfg.Type {
	case "flat", "":
		return memory.Build(vectors)
	case "qdrant":
		qc := cfg.Qdrant
		if qc == nil {
			return nil, errors.New("index.qdrant section missing")
		}
		idx := qdrant.New(qdrant.Config{
			URL:        qc.URL,
			APIKey:     qc.APIKey,
			Collection: qc.Collection,
			Timeout:    time.Duration(qc.TimeoutSecs) * time.Second,
			BatchSize:  qc.BatchSize,
		})
		if err := idx.Build(ctx, vectors); err != nil {
			return nil, err
		}
		return idx, nil
	}
	return nil, fmt.Errorf("unknown index type %q", cfg.Type)
}
