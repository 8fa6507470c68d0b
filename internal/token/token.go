package token

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts and segments text by byte-pair tokens. It is the single
// ruler for every token budget in the system.
type Counter interface {
	Count(text string) int
	Encode(text string) []int
	Decode(tokens []int) string
}

// Tiktoken is a Counter backed by the cl100k_base BPE vocabulary.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the cl100k_base encoding.
func NewTiktoken() (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load cl100k_base encoding: %w", err)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

func (t *Tiktoken) Encode(text string) []int {
	if text == "" {
		return nil
	}
	return t.enc.Encode(text, nil, nil)
}

func (t *Tiktoken) Decode(tokens []int) string {
	if len(tokens) == 0 {
		return ""
	}
	return t.enc.Decode(tokens)
}
