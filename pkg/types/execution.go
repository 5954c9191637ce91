package types

import "time"

// ExecutionStatus is the lifecycle state of an execution. Transitions are
// one-way into a terminal state; a terminal state is never left.
type ExecutionStatus string

const (
	StatusRunning ExecutionStatus = "running"
	StatusPaused  ExecutionStatus = "paused"
	StatusDone    ExecutionStatus = "done"
	StatusFailed  ExecutionStatus = "failed"
	StatusStopped ExecutionStatus = "stopped"
)

// IsTerminal reports whether the status is done, failed, or stopped.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusStopped:
		return true
	}
	return false
}

// DefaultMaxSteps caps an execution's step count unless overridden at start.
const DefaultMaxSteps = 50

// Execution is one run of an agent against one task through the step loop.
// It is created by the controller, mutated exclusively by the step executor
// (once per step, never concurrently for the same id), and never deleted.
type Execution struct {
	ID        string
	TaskID    string
	TaskTitle string
	AgentName string

	Status      ExecutionStatus
	CurrentStep int
	MaxSteps    int

	// Conversation is the ordered, append-only list of turns.
	Conversation []*Message

	// Staged holds the uncommitted file edits for this execution.
	Staged StagedChanges

	TokensUsed   int
	FilesChanged []string

	// CommitID is set at most once, on a successful completion commit.
	CommitID string

	// Error explains a failed execution.
	Error string

	Model      string
	RepoOwner  string
	RepoName   string
	Branch     string

	StartedAt   time.Time
	CompletedAt *time.Time
}

// StepsRemaining reports how many steps the execution may still run.
func (e *Execution) StepsRemaining() int {
	r := e.MaxSteps - e.CurrentStep
	if r < 0 {
		return 0
	}
	return r
}
