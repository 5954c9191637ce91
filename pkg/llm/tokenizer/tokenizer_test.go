package tokenizer

import (
	"strings"
	"testing"

	"github.com/entrhq/crew/pkg/types"
	"github.com/stretchr/testify/assert"
)

// newTokenizer skips the test when the encoding tables are unavailable
// (first use downloads them).
func newTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	tok, err := New()
	if err != nil {
		t.Skipf("tokenizer unavailable: %v", err)
	}
	return tok
}

func TestCountTokens(t *testing.T) {
	tok := newTokenizer(t)

	assert.Equal(t, 0, tok.CountTokens(""))
	assert.Greater(t, tok.CountTokens("hello world, this is a test"), 0)
}

func TestCountMessagesIncludesOverhead(t *testing.T) {
	tok := newTokenizer(t)

	msgs := []*types.Message{types.NewUserMessage("hi")}
	assert.Greater(t, tok.CountMessages(msgs), tok.CountTokens("hi"))
}

func TestTruncate(t *testing.T) {
	tok := newTokenizer(t)

	short, truncated := tok.Truncate("short text", 100)
	assert.False(t, truncated)
	assert.Equal(t, "short text", short)

	long := strings.Repeat("the quick brown fox jumps over the lazy dog ", 200)
	out, truncated := tok.Truncate(long, 50)
	assert.True(t, truncated)
	assert.Less(t, len(out), len(long))
	assert.Contains(t, out, "[truncated]")

	// A non-positive budget disables truncation.
	out, truncated = tok.Truncate(long, 0)
	assert.False(t, truncated)
	assert.Equal(t, long, out)
}
