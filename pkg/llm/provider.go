// Package llm provides abstractions for LLM completion providers.
//
// Providers are thin adapters over a hosted completion API. They convert a
// system prompt, conversation, and tool schema into one request and return
// the structured response. No retry or backoff logic lives here; transport
// failures propagate to the caller, which owns the failure policy.
//
// Example usage:
//
//	provider, err := openai.NewProvider(os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := provider.Complete(ctx, &llm.Request{
//	    System:   "You are a coding agent.",
//	    Messages: []*types.Message{types.NewUserMessage("Hello!")},
//	})
package llm

import (
	"context"

	"github.com/entrhq/crew/pkg/types"
)

// StopReason explains why the model stopped generating.
type StopReason string

const (
	// StopEndTurn indicates a natural end of turn.
	StopEndTurn StopReason = "end_turn"
	// StopToolUse indicates the model stopped to invoke tools.
	StopToolUse StopReason = "tool_use"
	// StopMaxTokens indicates the per-call token ceiling was reached.
	StopMaxTokens StopReason = "max_tokens"
)

// ToolDefinition describes one tool exposed to the model.
type ToolDefinition struct {
	Name        string
	Description string
	// Schema is a JSON Schema object for the tool's input.
	Schema map[string]any
}

// Request carries everything one completion call needs.
type Request struct {
	Model    string
	System   string
	Messages []*types.Message
	Tools    []ToolDefinition
	// MaxTokens is the per-call output token ceiling. Zero means the
	// provider default.
	MaxTokens int
}

// Usage reports the token counters for one completion call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the structured result of one completion call.
type Response struct {
	Content    []types.ContentBlock
	StopReason StopReason
	Usage      Usage
}

// Provider defines the interface for completion integrations.
//
// Complete is synchronous and returns the full response. A non-nil error
// means the call did not produce a usable response; partial responses are
// never returned alongside an error.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Model returns the model identifier used when the request does not
	// override it.
	Model() string
}
