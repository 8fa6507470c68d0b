// Package chunker splits node text into overlapping token-bounded chunks.
package chunker

import (
	"strings"

	"github.com/dgallion1/pagedex/internal/token"
)

// Config controls chunking behavior.
type Config struct {
	MaxTokens int // Maximum chunk size in tokens.
	Overlap   int // Overlap between consecutive chunks in tokens.
	MinTokens int // Chunks below this size are discarded.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens: 512,
		Overlap:   64,
		MinTokens: 32,
	}
}

// Piece is one chunk of a node's text.
type Piece struct {
	Content    string
	TokenCount int
}

// Split breaks text into overlapping chunks by exact token count. Chunking
// is deterministic: the same text and config always yield identical pieces.
func Split(text string, cfg Config, tok token.Counter) []Piece {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 64
	}
	if cfg.MinTokens <= 0 {
		cfg.MinTokens = 32
	}

	if strings.TrimSpace(text) == "" {
		return nil
	}

	tokens := tok.Encode(text)
	total := len(tokens)

	if total <= cfg.MaxTokens {
		if total < cfg.MinTokens {
			return nil
		}
		return []Piece{{Content: strings.TrimSpace(text), TokenCount: total}}
	}

	step := cfg.MaxTokens - cfg.Overlap
	if step <= 0 {
		step = cfg.MaxTokens
	}

	var pieces []Piece
	for start := 0; start < total; start += step {
		end := start + cfg.MaxTokens
		if end > total {
			end = total
		}
		window := tokens[start:end]
		if len(window) >= cfg.MinTokens {
			pieces = append(pieces, Piece{
				Content:    strings.TrimSpace(tok.Decode(window)),
				TokenCount: len(window),
			})
		}
	}
	return pieces
}
