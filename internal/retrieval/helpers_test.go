package retrieval

import (
	"log/slog"
	"strings"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// wordCounter counts whitespace-separated words as tokens.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func (wordCounter) Encode(text string) []int {
	return make([]int, len(strings.Fields(text)))
}

func (wordCounter) Decode([]int) string { return "" }
