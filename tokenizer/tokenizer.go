// Package tokenizer provides a real token counter backed by tiktoken BPE
// encodings. The engine's heuristic estimator is the fallback when encoding
// data is unavailable (for example in offline environments).
package tokenizer

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/mnemonlabs/mnemon"
)

const fallbackEncoding = "cl100k_base"

// Counter counts tokens with the BPE encoding of a specific model.
type Counter struct {
	enc *tiktoken.Tiktoken
}

var _ mnemon.TokenCounter = (*Counter)(nil)

// ForModel builds a Counter for model, falling back to the cl100k_base
// encoding when the model is unknown.
func ForModel(model string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("tokenizer: load encoding: %w", err)
		}
	}
	return &Counter{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
