// Package contextpack turns retrieved passages into the context block of
// the prompt, within a word budget.
package contextpack

import "strings"

// Bullet prefixes every accepted passage.
const Bullet = "- "

// Packed is the outcome of packing: the context text plus what went in.
type Packed struct {
	Text     string
	Accepted int
	Dropped  int
	Words    int
}

// CountWords is the budget unit. Whitespace-separated words stand in for
// model tokens, so the budget can be off in either direction for subword
// tokenizers.
func CountWords(s string) int { return len(strings.Fields(s)) }

// Pack accepts passages in order while the running word count stays within
// budget. The first passage that would overflow ends packing: it and all
// later passages are omitted whole, never cut.
func Pack(passages []string, budget int) Packed {
	var p Packed
	lines := make([]string, 0, len(passages))
	for i, doc := range passages {
		n := CountWords(doc)
		if p.Words+n > budget {
			p.Dropped = len(passages) - i
			break
		}
		lines = append(lines, Bullet+doc)
		p.Words += n
	}
	p.Accepted = len(lines)
	p.Text = strings.Join(lines, "\n")
	return p
}

// Assemble is Pack returning only the context text. An empty result means
// no passage fit.
func Assemble(passages []string, budget int) string {
	return Pack(passages, budget).Text
}
