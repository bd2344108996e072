// Package tokens provides tiktoken-based token counting used for usage metrics.
package tokens

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter provides approximate token counting for local models.
// Local models ship their own vocabularies; cl100k (GPT-4) is used as a stable approximation.
type Counter struct {
	codec tokenizer.Codec
}

//nolint:gochecknoglobals // Shared codec, loading it is expensive
var (
	defaultCounter     *Counter
	defaultCounterOnce sync.Once
)

// NewCounter creates a new token counter for the specified model.
func NewCounter(model string) (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in the given text.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil {
		return estimate(text)
	}

	count, err := c.codec.Count(text)
	if err != nil {
		return estimate(text)
	}
	return count
}

// Count counts tokens with a lazily created shared counter.
func Count(text string) int {
	defaultCounterOnce.Do(func() {
		counter, err := NewCounter("default")
		if err == nil {
			defaultCounter = counter
		}
	})
	return defaultCounter.Count(text)
}

// estimate is the character fallback (4 chars ≈ 1 token).
func estimate(text string) int {
	return len(text) / 4
}
