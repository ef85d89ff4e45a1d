// Package chunker splits extracted text into overlapping windows sized for
// the embedding and generation context budget.
package chunker

import (
	"strings"
)

// Chunker splits text into overlapping character windows. Boundaries prefer
// paragraph breaks, then sentence ends, falling back to hard cuts.
type Chunker struct {
	chunkSize int
	overlap   int
}

// New creates a chunker with the given window size and overlap, in runes.
func New(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// Chunk returns the ordered text windows for the given text. Empty and
// whitespace-only windows are discarded; empty input yields no chunks.
func (c *Chunker) Chunk(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.chunkSize
		if end >= len(runes) {
			appendChunk(&chunks, string(runes[start:]))
			break
		}
		cut := c.findBreak(runes, start, end)
		appendChunk(&chunks, string(runes[start:cut]))

		next := cut - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// findBreak searches backwards from end for a natural boundary inside the
// last fifth of the window. It returns end when none is found.
func (c *Chunker) findBreak(runes []rune, start, end int) int {
	limit := end - c.chunkSize/5
	if limit < start+1 {
		limit = start + 1
	}

	// Paragraph break first.
	for i := end; i > limit; i-- {
		if runes[i-1] == '\n' && i >= 2 && runes[i-2] == '\n' {
			return i
		}
	}
	// Then a sentence end or single newline.
	for i := end; i > limit; i-- {
		r := runes[i-1]
		if r == '\n' {
			return i
		}
		if (r == '.' || r == '!' || r == '?') && (i == len(runes) || runes[i] == ' ' || runes[i] == '\n') {
			return i
		}
	}
	return end
}

func appendChunk(chunks *[]string, s string) {
	s = strings.TrimSpace(s)
	if s != "" {
		*chunks = append(*chunks, s)
	}
}
