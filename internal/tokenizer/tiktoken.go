// Package tokenizer adapts tiktoken BPE encodings to crawler.Tokenizer.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding matches the text-embedding-3 model family.
const DefaultEncoding = "cl100k_base"

// Tiktoken encodes text with a named BPE encoding. Safe for concurrent use.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// New loads the named encoding. Ranks are downloaded once and cached under
// TIKTOKEN_CACHE_DIR (or the system temp dir).
func New(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Encode returns the token ids of text. Special-token text is encoded as
// ordinary text, so page content can never trip the special-token guard.
func (t *Tiktoken) Encode(text string) []int {
	return t.enc.EncodeOrdinary(text)
}

// Decode maps token ids back to text.
func (t *Tiktoken) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// Count returns the number of tokens in text.
func (t *Tiktoken) Count(text string) int {
	return len(t.Encode(text))
}
