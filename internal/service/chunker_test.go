package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestChunkerEmptyText(t *testing.T) {
	c := NewChunker(400, 40)
	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("   \n\t "))
}

func TestChunkerSingleChunk(t *testing.T) {
	c := NewChunker(10, 2)
	chunks := c.Split(words(10))
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 10, chunks[0].TokenCount)
	assert.Equal(t, words(10), chunks[0].Text)
}

func TestChunkerOverlap(t *testing.T) {
	c := NewChunker(10, 3)
	text := words(25)
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := Tokenize(chunks[i-1].Text)
		cur := Tokenize(chunks[i].Text)
		// the tail of one chunk is the head of the next
		assert.Equal(t, prev[len(prev)-3:], cur[:3], "chunk %d", i)
	}
}

func TestChunkerCoversAllTokens(t *testing.T) {
	c := NewChunker(10, 3)
	text := words(25)
	chunks := c.Split(text)

	last := chunks[len(chunks)-1]
	lastTokens := Tokenize(last.Text)
	assert.Equal(t, "w24", lastTokens[len(lastTokens)-1])

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.LessOrEqual(t, chunk.TokenCount, 10)
		assert.Equal(t, TokenCount(chunk.Text), chunk.TokenCount)
	}
}

func TestChunkerClampsBadConfig(t *testing.T) {
	c := NewChunker(5, 50)
	chunks := c.Split(words(20))
	require.NotEmpty(t, chunks)
	// overlap clamped below size, so the walk still terminates
	assert.Equal(t, len(chunks)-1, chunks[len(chunks)-1].Index)
}

func TestTokenCount(t *testing.T) {
	assert.Equal(t, 0, TokenCount(""))
	assert.Equal(t, 3, TokenCount("one  two\nthree"))
}
