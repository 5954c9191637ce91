// Package store persists executions and their log streams. Conversation and
// staged-change state cross this boundary as opaque JSON blobs; nothing above
// the store ever sees serialized form.
package store

import (
	"context"
	"errors"

	"github.com/entrhq/crew/pkg/types"
)

var (
	// ErrNotFound indicates the execution id does not exist.
	ErrNotFound = errors.New("execution not found")

	// ErrTaskBusy indicates the task already has a non-terminal execution.
	ErrTaskBusy = errors.New("task already has an active execution")

	// ErrNotRunning indicates a status transition was requested on an
	// execution that is no longer running. Terminal states are never
	// overwritten.
	ErrNotRunning = errors.New("execution is not running")
)

// Store is the persistence surface the engine depends on.
type Store interface {
	// CreateExecution inserts a new execution. At most one non-terminal
	// execution may exist per task; a second returns ErrTaskBusy.
	CreateExecution(ctx context.Context, exec *types.Execution) error

	// GetExecution loads one execution with its full conversation and
	// staged changes.
	GetExecution(ctx context.Context, id string) (*types.Execution, error)

	// UpdateExecutionState is the single per-step state write: conversation,
	// staged changes, step counter, token usage and files changed land
	// atomically. It is a no-op once the execution has left the running
	// state, so a terminal status written concurrently is never clobbered.
	UpdateExecutionState(ctx context.Context, exec *types.Execution) error

	// MarkDone transitions running → done, recording the commit id (empty
	// when the completion produced no commit).
	MarkDone(ctx context.Context, id, commitID string) error

	// MarkFailed transitions running → failed with a reason.
	MarkFailed(ctx context.Context, id, reason string) error

	// MarkStopped transitions running → stopped.
	MarkStopped(ctx context.Context, id string) error

	// AppendLog appends one entry to an execution's log stream.
	AppendLog(ctx context.Context, entry *types.LogEntry) error

	// ListLogs returns an execution's log entries in append order.
	ListLogs(ctx context.Context, executionID string) ([]*types.LogEntry, error)

	// ListExecutions returns recent executions, newest first.
	ListExecutions(ctx context.Context, limit int) ([]*types.Execution, error)

	// ListRunning returns all executions still in the running state,
	// used to re-schedule work after a process restart.
	ListRunning(ctx context.Context) ([]*types.Execution, error)

	Close() error
}
