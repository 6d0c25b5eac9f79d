package tokenizer

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const DefaultEncoding = "cl100k_base"

// Counter counts and truncates text in model tokens.
type Counter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// New loads a BPE encoding. The first load may download the ranks file.
func New(encoding string) (*Counter, error) {
	if strings.TrimSpace(encoding) == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", encoding, err)
	}
	return &Counter{enc: enc}, nil
}

func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.encode(text))
}

func (c *Counter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := c.encode(text)
	if len(tokens) <= maxTokens {
		return text
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.ToValidUTF8(c.enc.Decode(tokens[:maxTokens]), "")
}

func (c *Counter) encode(text string) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(text, nil, nil)
}

// Estimator approximates four characters per token. It stands in when no
// encoding can be loaded.
type Estimator struct{}

func (Estimator) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

func (Estimator) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	limit := maxTokens * 4
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
