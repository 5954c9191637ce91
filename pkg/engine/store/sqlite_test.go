package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/entrhq/crew/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "crew.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newExecution(taskID string) *types.Execution {
	return &types.Execution{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		AgentName: "atlas",
		Status:    types.StatusRunning,
		MaxSteps:  types.DefaultMaxSteps,
		Staged:    types.NewStagedChanges(),
		Model:     "gpt-4o",
		RepoOwner: "entrhq",
		RepoName:  "demo",
		Branch:    "main",
		StartedAt: time.Now().UTC(),
	}
}

func TestCreateAndGetExecution(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	exec := newExecution("T-1")
	require.NoError(t, s.CreateExecution(ctx, exec))

	got, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.ID, got.ID)
	assert.Equal(t, types.StatusRunning, got.Status)
	assert.Equal(t, 0, got.CurrentStep)
	assert.Empty(t, got.Conversation)
	assert.NotNil(t, got.Staged)

	_, err = s.GetExecution(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestOneActiveExecutionPerTask(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first := newExecution("T-1")
	require.NoError(t, s.CreateExecution(ctx, first))

	err := s.CreateExecution(ctx, newExecution("T-1"))
	assert.True(t, errors.Is(err, ErrTaskBusy))

	// A terminal execution releases the task.
	require.NoError(t, s.MarkFailed(ctx, first.ID, "step budget exhausted"))
	assert.NoError(t, s.CreateExecution(ctx, newExecution("T-1")))

	// Other tasks are unaffected.
	assert.NoError(t, s.CreateExecution(ctx, newExecution("T-2")))
}

func TestUpdateExecutionStateRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	exec := newExecution("T-1")
	require.NoError(t, s.CreateExecution(ctx, exec))

	exec.CurrentStep = 3
	exec.TokensUsed = 1200
	exec.FilesChanged = []string{"a.go"}
	exec.Conversation = []*types.Message{
		types.NewUserMessage("fix the bug"),
		types.NewAssistantMessage(types.TextBlock{Text: "on it"}, types.ToolUseBlock{
			ID: "c1", Name: "write_file", Input: []byte(`{"path":"a.go","content":"x"}`),
		}),
	}
	exec.Staged.Write("a.go", "x")
	exec.Staged.Delete("b.go")

	require.NoError(t, s.UpdateExecutionState(ctx, exec))

	got, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CurrentStep)
	assert.Equal(t, 1200, got.TokensUsed)
	assert.Equal(t, []string{"a.go"}, got.FilesChanged)

	require.Len(t, got.Conversation, 2)
	uses := got.Conversation[1].ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "write_file", uses[0].Name)

	change, ok := got.Staged.Get("a.go")
	require.True(t, ok)
	assert.Equal(t, "x", change.Content)
	change, ok = got.Staged.Get("b.go")
	require.True(t, ok)
	assert.True(t, change.Deleted)
}

func TestTerminalStatesNeverOverwritten(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	exec := newExecution("T-1")
	require.NoError(t, s.CreateExecution(ctx, exec))
	require.NoError(t, s.MarkDone(ctx, exec.ID, "sha-1"))

	// A second transition is rejected.
	err := s.MarkFailed(ctx, exec.ID, "late failure")
	assert.True(t, errors.Is(err, ErrNotRunning))
	err = s.MarkStopped(ctx, exec.ID)
	assert.True(t, errors.Is(err, ErrNotRunning))

	// A late state write is a guarded no-op.
	exec.CurrentStep = 99
	require.NoError(t, s.UpdateExecutionState(ctx, exec))

	got, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, got.Status)
	assert.Equal(t, "sha-1", got.CommitID)
	assert.Equal(t, 0, got.CurrentStep)
	assert.NotNil(t, got.CompletedAt)
}

func TestMarkFailedRecordsReason(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	exec := newExecution("T-1")
	require.NoError(t, s.CreateExecution(ctx, exec))
	require.NoError(t, s.MarkFailed(ctx, exec.ID, "provider transport error"))

	got, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, "provider transport error", got.Error)
	assert.Empty(t, got.CommitID)
}

func TestTransitionUnknownExecution(t *testing.T) {
	s := newStore(t)
	err := s.MarkStopped(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLogAppendAndOrdering(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	exec := newExecution("T-1")
	require.NoError(t, s.CreateExecution(ctx, exec))

	for i, entry := range []*types.LogEntry{
		{ExecutionID: exec.ID, Step: 0, Type: types.LogSystem, Content: "execution created"},
		{ExecutionID: exec.ID, Step: 1, Type: types.LogToolCall, Content: "write_file", Metadata: map[string]any{"path": "a.go"}},
		{ExecutionID: exec.ID, Step: 1, Type: types.LogToolResult, Content: "Staged 1 bytes at a.go"},
	} {
		require.NoError(t, s.AppendLog(ctx, entry), i)
		assert.NotZero(t, entry.ID)
	}

	entries, err := s.ListLogs(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, types.LogSystem, entries[0].Type)
	assert.Equal(t, types.LogToolCall, entries[1].Type)
	assert.Equal(t, "a.go", entries[1].Metadata["path"])
	assert.Equal(t, types.LogToolResult, entries[2].Type)

	// Other executions see nothing.
	other, err := s.ListLogs(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestListRunningAndListExecutions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	running := newExecution("T-1")
	require.NoError(t, s.CreateExecution(ctx, running))

	done := newExecution("T-2")
	require.NoError(t, s.CreateExecution(ctx, done))
	require.NoError(t, s.MarkDone(ctx, done.ID, ""))

	active, err := s.ListRunning(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, running.ID, active[0].ID)

	all, err := s.ListExecutions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
