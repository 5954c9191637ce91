// Package openai provides an OpenAI-compatible completion provider.
//
// The implementation sends requests over raw HTTP rather than through a
// generated SDK client, which provides better compatibility with
// OpenAI-compatible APIs (Azure, local gateways) that deviate slightly from
// the reference wire format. SDK message constructors are still used for the
// simple turn shapes so the request body stays aligned with the official
// schema.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/entrhq/crew/pkg/llm"
	"github.com/entrhq/crew/pkg/types"
	"github.com/openai/openai-go"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"

	defaultModel = "gpt-4o"
)

// Provider implements llm.Provider for OpenAI-compatible chat completion APIs.
type Provider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
// This enables using Azure OpenAI, local models, or other compatible services.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// NewProvider creates a new OpenAI provider with the given API key.
//
// If apiKey is empty, it will attempt to read from the OPENAI_API_KEY
// environment variable. If baseURL is not provided via WithBaseURL, the
// OPENAI_BASE_URL environment variable is checked before falling back to the
// default.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	p := &Provider{
		model:      defaultModel,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		baseURL:    DefaultBaseURL,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			p.baseURL = envBaseURL
		}
	}

	return p, nil
}

// Model returns the model name used for completions.
func (p *Provider) Model() string {
	return p.model
}

// Complete sends one chat completion request and returns the structured
// response. Transport and API errors are returned as-is; the caller owns
// retry policy.
func (p *Provider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	body := map[string]any{
		"model":    model,
		"messages": convertMessages(req.System, req.Messages),
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		body["tools"] = convertTools(req.Tools)
		body["tool_choice"] = "auto"
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBytes))
	}

	return parseCompletion(respBytes)
}

// completionResponse mirrors the subset of the chat completion response the
// engine consumes.
type completionResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func parseCompletion(data []byte) (*llm.Response, error) {
	var parsed completionResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("response contained no choices")
	}

	choice := parsed.Choices[0]

	var blocks []types.ContentBlock
	if choice.Message.Content != "" {
		blocks = append(blocks, types.TextBlock{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		input := tc.Function.Arguments
		if input == "" {
			input = "{}"
		}
		blocks = append(blocks, types.ToolUseBlock{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(input),
		})
	}

	return &llm.Response{
		Content:    blocks,
		StopReason: mapFinishReason(choice.FinishReason, len(choice.Message.ToolCalls) > 0),
		Usage: llm.Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}

// mapFinishReason normalizes the API's finish_reason into a StopReason.
// Some compatible gateways report "stop" even when tool calls are present,
// so the presence of tool calls takes precedence.
func mapFinishReason(reason string, hasToolCalls bool) llm.StopReason {
	if hasToolCalls {
		return llm.StopToolUse
	}
	switch reason {
	case "tool_calls":
		return llm.StopToolUse
	case "length":
		return llm.StopMaxTokens
	default:
		return llm.StopEndTurn
	}
}

// convertMessages maps engine turns onto OpenAI chat messages. Assistant
// turns carrying tool calls and tool-result turns need wire shapes the SDK
// constructors don't cover, so those are emitted as raw objects.
func convertMessages(system string, messages []*types.Message) []any {
	out := make([]any, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Text()))
		case types.RoleUser:
			out = append(out, openai.UserMessage(msg.Text()))
		case types.RoleAssistant:
			calls := msg.ToolUses()
			if len(calls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Text()))
				continue
			}
			toolCalls := make([]map[string]any, 0, len(calls))
			for _, c := range calls {
				toolCalls = append(toolCalls, map[string]any{
					"id":   c.ID,
					"type": "function",
					"function": map[string]any{
						"name":      c.Name,
						"arguments": string(c.Input),
					},
				})
			}
			assistant := map[string]any{
				"role":       "assistant",
				"tool_calls": toolCalls,
			}
			if text := msg.Text(); text != "" {
				assistant["content"] = text
			}
			out = append(out, assistant)
		case types.RoleTool:
			// One wire message per tool result.
			for _, block := range msg.Content {
				result, ok := block.(types.ToolResultBlock)
				if !ok {
					continue
				}
				content := result.Content
				if result.IsError {
					content = "ERROR: " + content
				}
				out = append(out, map[string]any{
					"role":         "tool",
					"tool_call_id": result.ToolUseID,
					"content":      content,
				})
			}
		}
	}
	return out
}

func convertTools(tools []llm.ToolDefinition) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Schema,
			},
		})
	}
	return out
}
