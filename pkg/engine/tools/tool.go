// Package tools defines the capabilities an agent can invoke during a step
// and the registry that dispatches structured tool calls to them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/entrhq/crew/pkg/llm"
	"github.com/entrhq/crew/pkg/repo"
	"github.com/entrhq/crew/pkg/types"
)

// Tool represents a capability an agent can use during execution. Tools are
// invoked through the provider's native tool calling and operate on the
// execution's staging environment.
type Tool interface {
	// Name returns the unique identifier for this tool (e.g. "write_file")
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// Schema returns the JSON schema for this tool's input parameters
	Schema() map[string]any

	// Execute runs the tool against the execution environment and returns a
	// result string for the conversation
	Execute(ctx context.Context, input json.RawMessage, env *Env) (string, error)

	// IsCompleting indicates whether a successful call to this tool marks the
	// execution as complete
	IsCompleting() bool
}

// Env is the per-execution environment tools operate on. Staged is the
// execution's private change buffer; Repo reads from the target branch.
type Env struct {
	Staged types.StagedChanges
	Repo   repo.Client
	Guard  *PathGuard

	// Summary is set by the completion tool and read back by the engine when
	// it promotes staged changes to a commit.
	Summary string
}

// Registry holds the tools available to an execution, keyed by name.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry with the standard file tools and the
// completion tool registered.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	r.Register(&ReadFileTool{})
	r.Register(&WriteFileTool{name: "write_file", description: "Write full file content into the staged changes, replacing any existing content at the path."})
	r.Register(&WriteFileTool{name: "create_file", description: "Create a new file in the staged changes with the given content."})
	r.Register(&DeleteFileTool{})
	r.Register(&TaskCompleteTool{})
	return r
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the provider-facing tool definitions, sorted by name so
// prompts are stable across runs.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Dispatch executes one tool call and always returns a result block. Unknown
// tools, invalid input, handler errors and handler panics all surface as
// error-flagged results rather than failing the step. The second return
// reports whether the call marked the execution complete.
func (r *Registry) Dispatch(ctx context.Context, call types.ToolUseBlock, env *Env) (result types.ToolResultBlock, completing bool) {
	result = types.ToolResultBlock{ToolUseID: call.ID, Name: call.Name}

	tool, ok := r.tools[call.Name]
	if !ok {
		result.IsError = true
		result.Content = fmt.Sprintf("unknown tool: %s", call.Name)
		return result, false
	}

	defer func() {
		if p := recover(); p != nil {
			result.IsError = true
			result.Content = fmt.Sprintf("tool %s panicked: %v", call.Name, p)
			completing = false
		}
	}()

	output, err := tool.Execute(ctx, call.Input, env)
	if err != nil {
		result.IsError = true
		result.Content = err.Error()
		return result, false
	}

	result.Content = output
	return result, tool.IsCompleting()
}

// objectSchema builds a JSON schema object with the given properties and
// required fields.
func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
