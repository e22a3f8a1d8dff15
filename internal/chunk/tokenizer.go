package chunk

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens the way a given LLM provider would, so chunk
// boundaries respect the provider's real token budget rather than an
// approximation.
type Tokenizer interface {
	Count(text string) int
}

// tiktokenCounter wraps a cl100k_base encoding.
type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// approxCounter is used when the tiktoken encoding table can't be loaded
// (e.g. no network access to fetch the BPE ranks file). It approximates
// one token per four bytes plus a 20% safety margin, erring toward
// smaller chunks rather than exceeding a provider's real limit.
type approxCounter struct{}

func (approxCounter) Count(text string) int {
	n := len(text) / 4
	return n + n/5 + 1
}

var (
	defaultOnce sync.Once
	defaultTok  Tokenizer
)

// Default returns a process-wide cl100k_base tokenizer, falling back to
// approxCounter if the encoding can't be loaded.
func Default() Tokenizer {
	defaultOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			defaultTok = approxCounter{}
			return
		}
		defaultTok = &tiktokenCounter{enc: enc}
	})
	return defaultTok
}

// NewTiktoken builds a Tokenizer for a specific tiktoken encoding name
// (e.g. "cl100k_base", "o200k_base").
func NewTiktoken(encodingName string) (Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	return &tiktokenCounter{enc: enc}, nil
}
