// Package chunk splits token sequences into fixed-size overlapping windows
// sized for an embedding model's input limit.
package chunk

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/pageindex/internal/crawler"
)

// SplitOverlapping returns windows of at most size tokens, each starting
// size-overlap tokens after the previous one. A window is emitted only while
// more than overlap tokens remain, so no window is pure overlap with its
// predecessor. The windows alias tokens.
//
// It panics unless size > 0 and 0 <= overlap < size.
func SplitOverlapping[T any](tokens []T, size, overlap int) [][]T {
	if size <= 0 || overlap < 0 || overlap >= size {
		panic(fmt.Sprintf("chunk: invalid window size=%d overlap=%d", size, overlap))
	}
	var windows [][]T
	step := size - overlap
	for start := 0; start < len(tokens); start += step {
		if len(tokens)-start <= overlap {
			continue
		}
		end := min(start+size, len(tokens))
		windows = append(windows, tokens[start:end:end])
	}
	return windows
}

// Chunker tokenizes page text and decodes each window back into a Chunk.
type Chunker struct {
	tokenizer crawler.Tokenizer
	size      int
	overlap   int
}

// New builds a Chunker; it panics on an invalid window configuration.
func New(tokenizer crawler.Tokenizer, size, overlap int) *Chunker {
	if tokenizer == nil {
		panic("chunk: tokenizer is required")
	}
	if size <= 0 || overlap < 0 || overlap >= size {
		panic(fmt.Sprintf("chunk: invalid window size=%d overlap=%d", size, overlap))
	}
	return &Chunker{tokenizer: tokenizer, size: size, overlap: overlap}
}

// Split returns the page's chunks in order. Empty text yields no chunks.
// Every chunk's text is valid UTF-8 and re-encodes to at most size tokens.
func (c *Chunker) Split(pageID int64, text string) []crawler.Chunk {
	windows := SplitOverlapping(c.tokenizer.Encode(text), c.size, c.overlap)
	chunks := make([]crawler.Chunk, 0, len(windows))
	for _, window := range windows {
		decoded, tokens := c.decode(window)
		if decoded == "" {
			continue
		}
		chunks = append(chunks, crawler.Chunk{
			PageID: pageID,
			Index:  len(chunks),
			Text:   decoded,
			Tokens: tokens,
		})
	}
	return chunks
}

// decode turns a window back into text. A window edge can fall inside a
// multi-byte character; those partial bytes are dropped, and the window is
// shortened from the end until the text re-encodes within size tokens.
func (c *Chunker) decode(window []int) (string, int) {
	for end := len(window); end > 0; end-- {
		text := strings.ToValidUTF8(c.tokenizer.Decode(window[:end]), "")
		if n := len(c.tokenizer.Encode(text)); n <= c.size {
			return text, n
		}
	}
	return "", 0
}
