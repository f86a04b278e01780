// Package chunker splits raw documents into passages for a corpus.
package chunker

import (
	"regexp"
	"strconv"
	"strings"
)

// Document is a source text to split.
type Document struct {
	ID      string
	Content string
}

// Passage is one sentence window of a document.
type Passage struct {
	DocumentID string
	ID         string
	Text       string
	Index      int
}

// SentenceChunker groups sentences into fixed-size windows that overlap by
// a configurable number of sentences.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

// NewSentenceChunker returns a chunker. Non-positive sizes fall back to 5
// sentences per passage; the overlap is clamped below the window size.
func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

// Chunk splits doc. Whitespace-only documents yield no passages; text with
// no sentence terminator is a single passage.
func (c *SentenceChunker) Chunk(doc Document) []Passage {
	sentences := c.splitter.FindAllString(doc.Content, -1)
	if len(sentences) == 0 {
		trimmed := strings.TrimSpace(doc.Content)
		if trimmed == "" {
			return nil
		}
		sentences = []string{trimmed}
	}
	for i := range sentences {
		sentences[i] = strings.Join(strings.Fields(sentences[i]), " ")
	}

	var out []Passage
	for i, idx := 0, 0; i < len(sentences); idx++ {
		end := min(i+c.sentencesPerChunk, len(sentences))
		out = append(out, Passage{
			DocumentID: doc.ID,
			ID:         doc.ID + ":" + strconv.Itoa(idx),
			Text:       strings.Join(sentences[i:end], " "),
			Index:      idx,
		})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return out
}
