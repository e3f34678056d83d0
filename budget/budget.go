// Package budget provides token counting and budget-bounded truncation.
//
// Every context packet handed to a generation or critique call is sized
// here so it fits the model's context window. Counting uses the cl100k_base
// tiktoken encoding with a fixed chars-per-token fallback when the encoder
// cannot be initialized (the encoding tables are fetched on first use).
package budget

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Style selects which part of the text survives truncation.
type Style int

const (
	// Head keeps the beginning of the text.
	Head Style = iota
	// Tail keeps the end of the text.
	Tail
	// Middle keeps the beginning and the end, dropping the middle.
	Middle
)

// fallbackCharsPerToken approximates tokens when no encoder is available.
const fallbackCharsPerToken = 3

const (
	headMarker   = "\n... [content truncated, beginning shown] ..."
	tailMarker   = "... [content truncated, ending shown] ...\n"
	middleMarker = "\n... [middle content truncated] ...\n"
)

// Counter counts tokens and truncates text to token budgets. It is
// deterministic and safe for concurrent use.
type Counter struct {
	enc *tiktoken.Tiktoken // nil means character fallback
}

// NewCounter creates a counter backed by the cl100k_base encoding,
// degrading to the character approximation if the encoding is unavailable.
func NewCounter() *Counter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Counter{}
	}
	return &Counter{enc: enc}
}

// NewApproxCounter creates a counter that always uses the character
// approximation. Useful in tests and offline environments.
func NewApproxCounter() *Counter {
	return &Counter{}
}

// Count returns the token-equivalent length of text. Empty input counts 0.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return (len(text) + fallbackCharsPerToken - 1) / fallbackCharsPerToken
}

// Truncate bounds text to at most maxTokens token-equivalents, inserting a
// marker where content was removed. Text already within the budget is
// returned unchanged. Empty input yields an empty string.
func (c *Counter) Truncate(text string, maxTokens int, style Style) string {
	if text == "" {
		return ""
	}
	if maxTokens <= 0 {
		return ""
	}

	if c.enc == nil {
		return truncateByChars(text, maxTokens*fallbackCharsPerToken, style)
	}

	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}

	switch style {
	case Head:
		return c.enc.Decode(tokens[:maxTokens]) + headMarker
	case Tail:
		return tailMarker + c.enc.Decode(tokens[len(tokens)-maxTokens:])
	default: // Middle
		h := maxTokens / 2
		t := maxTokens - h
		head := c.enc.Decode(tokens[:h])
		tail := c.enc.Decode(tokens[len(tokens)-t:])
		return head + middleMarker + tail
	}
}

// truncateByChars mirrors Truncate using the character approximation.
func truncateByChars(text string, charLimit int, style Style) string {
	if len(text) <= charLimit {
		return text
	}

	// Cut on byte boundaries is unacceptable for multi-byte text; operate
	// on runes.
	runes := []rune(text)
	if len(runes) <= charLimit {
		return text
	}

	switch style {
	case Head:
		return string(runes[:charLimit]) + headMarker
	case Tail:
		return tailMarker + string(runes[len(runes)-charLimit:])
	default: // Middle
		h := charLimit / 2
		t := charLimit - h
		return string(runes[:h]) + middleMarker + string(runes[len(runes)-t:])
	}
}

// Checksum returns the SHA-256 hex digest of text, used to detect changes
// in the external reference pool across checkpoint resumes.
func Checksum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// IsBlank reports whether text is empty or whitespace only.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
