package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// TaskCompleteTool signals that the agent considers the task finished. It is
// the only completing tool: a successful call ends the step loop and hands
// the staged changes to the engine for commit.
type TaskCompleteTool struct{}

type taskCompleteArgs struct {
	Summary string `json:"summary"`
}

func (t *TaskCompleteTool) Name() string { return "task_complete" }

func (t *TaskCompleteTool) Description() string {
	return "Mark the task as complete. Call this once all changes are staged; the summary becomes part of the commit message."
}

func (t *TaskCompleteTool) Schema() map[string]any {
	return objectSchema(map[string]any{
		"summary": map[string]any{
			"type":        "string",
			"description": "One or two sentences describing what was done",
		},
	}, "summary")
}

func (t *TaskCompleteTool) IsCompleting() bool { return true }

func (t *TaskCompleteTool) Execute(_ context.Context, input json.RawMessage, env *Env) (string, error) {
	var args taskCompleteArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("invalid task_complete input: %w", err)
	}

	summary := strings.TrimSpace(args.Summary)
	if summary == "" {
		return "", fmt.Errorf("task_complete requires a non-empty summary")
	}

	env.Summary = summary
	return "Task marked complete.", nil
}
