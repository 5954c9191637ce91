// Package types defines the shared data model for the Crew engine:
// conversation messages and content blocks, executions, staged changes,
// and persisted log entries.
//
// Conversation and staged-change values are strongly typed in memory and
// cross exactly one serialization boundary, at the persistence layer.
package types

import (
	"encoding/json"
	"fmt"
)

// MessageRole identifies the author of a conversation turn.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is one role-tagged turn in an execution's conversation.
// A turn carries an ordered list of content blocks: plain narration,
// tool invocations emitted by the model, or tool results echoed back
// for the next completion call.
type Message struct {
	Role    MessageRole    `json:"role"`
	Content []ContentBlock `json:"content"`
}

// NewUserMessage creates a user turn with a single text block.
func NewUserMessage(text string) *Message {
	return &Message{Role: RoleUser, Content: []ContentBlock{TextBlock{Text: text}}}
}

// NewAssistantMessage creates an assistant turn from the given blocks.
func NewAssistantMessage(blocks ...ContentBlock) *Message {
	return &Message{Role: RoleAssistant, Content: blocks}
}

// NewToolResultsMessage creates a tool turn aggregating the results of
// every tool call made in the preceding assistant turn.
func NewToolResultsMessage(results ...ToolResultBlock) *Message {
	blocks := make([]ContentBlock, len(results))
	for i, r := range results {
		blocks[i] = r
	}
	return &Message{Role: RoleTool, Content: blocks}
}

// Text concatenates the message's text blocks.
func (m *Message) Text() string {
	var out string
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok {
			out += t.Text
		}
	}
	return out
}

// ToolUses returns the message's tool_use blocks in order.
func (m *Message) ToolUses() []ToolUseBlock {
	var calls []ToolUseBlock
	for _, b := range m.Content {
		if tu, ok := b.(ToolUseBlock); ok {
			calls = append(calls, tu)
		}
	}
	return calls
}

// ContentBlock is one element of a message. Implementations are TextBlock,
// ToolUseBlock, and ToolResultBlock.
type ContentBlock interface {
	BlockType() string
}

// TextBlock carries plain narration text.
type TextBlock struct {
	Text string `json:"text"`
}

func (TextBlock) BlockType() string { return "text" }

// ToolUseBlock is a structured tool invocation emitted by the model.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (ToolUseBlock) BlockType() string { return "tool_use" }

// ToolResultBlock is the engine's response to a single tool call.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error"`
}

func (ToolResultBlock) BlockType() string { return "tool_result" }

// blockEnvelope is the serialized form of a content block, with a type
// discriminator so the union round-trips through JSON.
type blockEnvelope struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// MarshalJSON writes the message with discriminated content blocks.
func (m Message) MarshalJSON() ([]byte, error) {
	envs := make([]blockEnvelope, 0, len(m.Content))
	for _, b := range m.Content {
		switch blk := b.(type) {
		case TextBlock:
			envs = append(envs, blockEnvelope{Type: "text", Text: blk.Text})
		case ToolUseBlock:
			envs = append(envs, blockEnvelope{Type: "tool_use", ID: blk.ID, Name: blk.Name, Input: blk.Input})
		case ToolResultBlock:
			envs = append(envs, blockEnvelope{Type: "tool_result", ToolUseID: blk.ToolUseID, Name: blk.Name, Content: blk.Content, IsError: blk.IsError})
		default:
			return nil, fmt.Errorf("unknown content block type %T", b)
		}
	}
	return json.Marshal(struct {
		Role    MessageRole     `json:"role"`
		Content []blockEnvelope `json:"content"`
	}{Role: m.Role, Content: envs})
}

// UnmarshalJSON restores the discriminated content blocks.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    MessageRole     `json:"role"`
		Content []blockEnvelope `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = make([]ContentBlock, 0, len(raw.Content))
	for _, env := range raw.Content {
		switch env.Type {
		case "text":
			m.Content = append(m.Content, TextBlock{Text: env.Text})
		case "tool_use":
			m.Content = append(m.Content, ToolUseBlock{ID: env.ID, Name: env.Name, Input: env.Input})
		case "tool_result":
			m.Content = append(m.Content, ToolResultBlock{ToolUseID: env.ToolUseID, Name: env.Name, Content: env.Content, IsError: env.IsError})
		default:
			return fmt.Errorf("unknown content block type %q", env.Type)
		}
	}
	return nil
}

// MarshalConversation serializes an ordered conversation for persistence.
func MarshalConversation(msgs []*Message) ([]byte, error) {
	return json.Marshal(msgs)
}

// UnmarshalConversation restores a conversation from its persisted form.
// An empty blob yields an empty conversation.
func UnmarshalConversation(data []byte) ([]*Message, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var msgs []*Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return msgs, nil
}
