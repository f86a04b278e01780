package domain

import "context"

// Neighbor is one nearest-neighbor hit: a corpus position and its squared
// L2 distance to the query (lower is closer).
type Neighbor struct {
	Index    int
	Distance float32
}

// Message is a single role-tagged entry of a chat prompt.
type Message struct {
	Role    string
	Content string
}

// Chat roles understood by the generation service.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest is what the pipeline hands to a Generator.
type CompletionRequest struct {
	Messages  []Message
	MaxTokens int
}

// Encoder converts free text into a fixed-dimension dense vector.
// Implementations are safe for concurrent use once constructed.
type Encoder interface {
	Name() string
	Dimension() int
	Encode(ctx context.Context, text string) ([]float32, error)
}

// BatchEncoder is implemented by encoders that can pad and encode several
// texts in one pass.
type BatchEncoder interface {
	Encoder
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index answers k-nearest-neighbor queries over an immutable set of vectors.
type Index interface {
	Dimension() int
	Len() int
	Search(ctx context.Context, query []float32, k int) ([]Neighbor, error)
}

// Generator is the external language-generation service.
type Generator interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Passages is the read-only, index-addressable view of the corpus.
type Passages interface {
	Len() int
	Text(i int) (string, bool)
}
