// Package tokenizer provides client-side token counting for prompt budgeting.
package tokenizer

import (
	"fmt"

	"github.com/entrhq/crew/pkg/types"
	tiktoken "github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

// messageOverheadTokens approximates the per-message framing cost the API
// adds around each turn.
const messageOverheadTokens = 4

// Tokenizer counts tokens using the cl100k_base encoding. Counts are
// estimates for budgeting and truncation; authoritative usage comes from the
// completion response.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New creates a tokenizer. The encoding tables are loaded once and cached by
// the underlying library.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", encodingName, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// CountTokens returns the token count of a string.
func (t *Tokenizer) CountTokens(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessages estimates the token count of a conversation, including
// per-message framing overhead.
func (t *Tokenizer) CountMessages(msgs []*types.Message) int {
	total := 0
	for _, msg := range msgs {
		total += messageOverheadTokens
		for _, block := range msg.Content {
			switch b := block.(type) {
			case types.TextBlock:
				total += t.CountTokens(b.Text)
			case types.ToolUseBlock:
				total += t.CountTokens(b.Name) + t.CountTokens(string(b.Input))
			case types.ToolResultBlock:
				total += t.CountTokens(b.Content)
			}
		}
	}
	return total
}

// Truncate cuts text down to at most maxTokens tokens, appending a marker
// when content was dropped. It reports whether truncation occurred.
func (t *Tokenizer) Truncate(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 {
		return text, false
	}
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, false
	}
	truncated := t.enc.Decode(tokens[:maxTokens])
	return truncated + "\n... [truncated]", true
}
