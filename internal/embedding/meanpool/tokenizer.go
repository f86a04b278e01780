package meanpool

import (
	"regexp"
	"strings"
)

// Special tokens framing every sequence.
const (
	TokenCLS = "[CLS]"
	TokenSEP = "[SEP]"
	TokenPAD = "[PAD]"
)

// Tokenizer is a BERT-style basic tokenizer: lowercase, then letter runs
// (with inner apostrophes), digit runs and single punctuation marks.
type Tokenizer struct {
	maxTokens    int
	tokenPattern *regexp.Regexp
}

// NewTokenizer creates a tokenizer that truncates sequences to maxTokens,
// counting the two framing tokens.
func NewTokenizer(maxTokens int) *Tokenizer {
	if maxTokens < 2 {
		maxTokens = 2
	}
	return &Tokenizer{
		maxTokens:    maxTokens,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+|[^\s\p{L}\p{N}]`),
	}
}

// MaxTokens returns the truncation length.
func (t *Tokenizer) MaxTokens() int { return t.maxTokens }

// Tokenize returns [CLS] tokens... [SEP], truncated to MaxTokens.
func (t *Tokenizer) Tokenize(text string) []string {
	raw := t.tokenPattern.FindAllString(strings.ToLower(text), -1)
	if limit := t.maxTokens - 2; len(raw) > limit {
		raw = raw[:limit]
	}
	out := make([]string, 0, len(raw)+2)
	out = append(out, TokenCLS)
	out = append(out, raw...)
	return append(out, TokenSEP)
}

// Batch tokenizes texts and pads every sequence to the longest one. The
// mask is 1 for real tokens and 0 for padding.
func (t *Tokenizer) Batch(texts []string) (tokens [][]string, mask [][]uint8) {
	tokens = make([][]string, len(texts))
	longest := 0
	for i, text := range texts {
		tokens[i] = t.Tokenize(text)
		if len(tokens[i]) > longest {
			longest = len(tokens[i])
		}
	}
	mask = make([][]uint8, len(texts))
	for i := range tokens {
		m := make([]uint8, longest)
		for j := range tokens[i] {
			m[j] = 1
		}
		for len(tokens[i]) < longest {
			tokens[i] = append(tokens[i], TokenPAD)
		}
		mask[i] = m
	}
	return tokens, mask
}
