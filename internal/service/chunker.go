package service

import (
	"strings"
)

// ChunkPiece is one token-bounded segment of normalized text.
type ChunkPiece struct {
	Index      int
	Text       string
	TokenCount int
}

// Chunker splits normalized text into overlapping token-bounded
// segments. Size and overlap are measured with the same token
// estimator used for embedding budgeting, so chunk sizing and
// embedding cost agree.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 400
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split returns the ordered chunk sequence. Empty text yields nil;
// text of at most one chunk yields exactly one chunk holding all of
// it. Consecutive chunks share exactly the configured token overlap.
func (c *Chunker) Split(text string) []ChunkPiece {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	if len(tokens) <= c.size {
		return []ChunkPiece{{
			Index:      0,
			Text:       strings.Join(tokens, " "),
			TokenCount: len(tokens),
		}}
	}

	step := c.size - c.overlap
	var chunks []ChunkPiece
	for start := 0; start < len(tokens); start += step {
		end := start + c.size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, ChunkPiece{
			Index:      len(chunks),
			Text:       strings.Join(tokens[start:end], " "),
			TokenCount: end - start,
		})
		if end == len(tokens) {
			break
		}
	}
	return chunks
}

// Tokenize splits normalized text into whitespace-delimited tokens.
// It is the single token estimator for the whole pipeline.
func Tokenize(text string) []string {
	return strings.Fields(text)
}

// TokenCount estimates the token length of text.
func TokenCount(text string) int {
	return len(Tokenize(text))
}
