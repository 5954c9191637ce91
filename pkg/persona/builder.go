package persona

import (
	"fmt"
	"strings"
)

// Task is the unit of work handed to an agent by the dispatch system.
type Task struct {
	ID          string
	Title       string
	Description string
	Priority    string
	Labels      []string
}

// RepoContext identifies the repository an execution works against.
type RepoContext struct {
	Owner  string
	Name   string
	Branch string
}

// PromptBuilder constructs the system prompt for an execution.
type PromptBuilder struct {
	persona Persona
	repo    RepoContext
}

// NewPromptBuilder creates a builder for the given persona.
func NewPromptBuilder(p Persona) *PromptBuilder {
	return &PromptBuilder{persona: p}
}

// WithRepoContext adds the target repository to the prompt.
func (pb *PromptBuilder) WithRepoContext(repo RepoContext) *PromptBuilder {
	pb.repo = repo
	return pb
}

// Build assembles the complete system prompt.
func (pb *PromptBuilder) Build() string {
	var builder strings.Builder

	builder.WriteString("<identity>\n")
	fmt.Fprintf(&builder, "You are %s (%s) on an autonomous software team.\n", pb.persona.Name, pb.persona.Role)
	if pb.persona.Description != "" {
		builder.WriteString(pb.persona.Description)
		builder.WriteString("\n")
	}
	if len(pb.persona.FocusAreas) > 0 {
		fmt.Fprintf(&builder, "Focus areas: %s\n", strings.Join(pb.persona.FocusAreas, ", "))
	}
	builder.WriteString("</identity>\n\n")

	if pb.repo.Owner != "" {
		builder.WriteString("<repository>\n")
		fmt.Fprintf(&builder, "You are working in %s/%s on branch %s.\n", pb.repo.Owner, pb.repo.Name, pb.repo.Branch)
		builder.WriteString("File reads see your own staged edits first, then the repository.\n")
		builder.WriteString("</repository>\n\n")
	}

	builder.WriteString(WorkflowPrompt)
	builder.WriteString("\n\n")
	builder.WriteString(ToolUseRulesPrompt)

	if pb.persona.Instructions != "" {
		builder.WriteString("\n\n<instructions>\n")
		builder.WriteString(pb.persona.Instructions)
		builder.WriteString("\n</instructions>")
	}

	return builder.String()
}

// BuildInitialTurn renders the task into the opening user message of the
// conversation.
func BuildInitialTurn(task Task) string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "# Task: %s\n\n", task.Title)
	if task.Description != "" {
		builder.WriteString(task.Description)
		builder.WriteString("\n")
	}
	if task.Priority != "" {
		fmt.Fprintf(&builder, "\nPriority: %s\n", task.Priority)
	}
	if len(task.Labels) > 0 {
		fmt.Fprintf(&builder, "Labels: %s\n", strings.Join(task.Labels, ", "))
	}
	builder.WriteString("\nWork the task step by step. When everything is done, call task_complete with a summary of what you changed.")

	return builder.String()
}
