// Package generator builds the grounded prompt and calls the external
// language model.
package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ragqa/internal/domain"
)

// InsufficientContext is the sentence the model is told to answer with
// when the context does not cover the question.
const InsufficientContext = "Sorry, I don't have enough information to answer that yet."

const systemPrompt = "You are an expert teacher. Understand the question and based on the question find out the answer. " +
	"Based on the following context, provide a concise and accurate answer to the query in 1 sentence or 2. " +
	"Cite relevant details from the context and ensure clarity."

const userTemplate = `Use the following context to answer the question. If the context is insufficient, say:
"%s"

Question: %s

Context:
%s
`

// BuildMessages returns the system and user messages for question and
// context. Both are embedded verbatim.
func BuildMessages(question, contextBlock string) []domain.Message {
	return []domain.Message{
		{Role: domain.RoleSystem, Content: systemPrompt},
		{Role: domain.RoleUser, Content: fmt.Sprintf(userTemplate, InsufficientContext, question, contextBlock)},
	}
}

// AnswerGenerator wraps a domain.Generator with the prompt contract, an
// output cap and a deadline.
type AnswerGenerator struct {
	llm       domain.Generator
	maxTokens int
	timeout   time.Duration
}

// New creates an AnswerGenerator. A zero timeout leaves the deadline to the
// caller's context.
func New(llm domain.Generator, maxTokens int, timeout time.Duration) (*AnswerGenerator, error) {
	if llm == nil {
		return nil, errors.New("answer generator needs a generator")
	}
	if maxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", maxTokens)
	}
	return &AnswerGenerator{llm: llm, maxTokens: maxTokens, timeout: timeout}, nil
}

// Generate asks the model to answer question from context. Every failure,
// including a timeout, comes back as a KindGeneration error.
func (g *AnswerGenerator) Generate(ctx context.Context, question, contextBlock string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	text, err := g.llm.Complete(ctx, domain.CompletionRequest{
		Messages:  BuildMessages(question, contextBlock),
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return "", domain.Wrap(domain.KindGeneration, "generate answer with "+g.llm.Name(), err)
	}
	return text, nil
}
