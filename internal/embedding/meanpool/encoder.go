// Package meanpool implements a local text encoder: tokenize, look up a
// vector per token, average over the sequence.
package meanpool

import (
	"context"
	"errors"
)

// Encoder produces mean-pooled sentence embeddings. It holds no mutable
// state and is safe for concurrent use.
type Encoder struct {
	model     *Model
	tokenizer *Tokenizer
}

// New creates an encoder over model, truncating input to maxTokens tokens.
func New(model *Model, maxTokens int) (*Encoder, error) {
	if model == nil {
		return nil, errors.New("meanpool encoder needs a model")
	}
	return &Encoder{model: model, tokenizer: NewTokenizer(maxTokens)}, nil
}

// Name returns the identifier of the loaded weights.
func (e *Encoder) Name() string { return e.model.Name() }

// Dimension returns the dimensionality of the produced vectors.
func (e *Encoder) Dimension() int { return e.model.Dimension() }

// Encode returns the embedding for a single text.
func (e *Encoder) Encode(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EncodeBatch pads texts to a common length and mean-pools each row over
// its unmasked positions.
func (e *Encoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	tokens, mask := e.tokenizer.Batch(texts)
	dim := e.model.Dimension()
	out := make([][]float32, len(texts))
	acc := make([]float64, dim)
	for i := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := range acc {
			acc[j] = 0
		}
		n := 0
		for j, tok := range tokens[i] {
			if mask[i][j] == 0 {
				continue
			}
			e.model.addTo(acc, tok)
			n++
		}
		vec := make([]float32, dim)
		for j, x := range acc {
			vec[j] = float32(x / float64(n))
		}
		out[i] = vec
	}
	return out, nil
}
