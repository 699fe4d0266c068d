package token

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func getEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			encoding = enc
		}
	})
	return encoding
}

// Count returns an accurate token count using the cl100k_base encoding,
// falling back to the character heuristic when tiktoken is unavailable.
func Count(text string) int {
	if enc := getEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return EstimateText(strings.TrimSpace(text))
}

// Truncate shortens text to roughly maxTokens, appending an ellipsis when
// anything was cut. Used to bound summarization prompt payloads.
func Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	if enc := getEncoding(); enc != nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= maxTokens {
			return text
		}
		return enc.Decode(tokens[:maxTokens]) + "..."
	}
	runes := []rune(text)
	limit := maxTokens * CharsPerToken
	if limit >= len(runes) {
		return text
	}
	return string(runes[:limit]) + "..."
}
