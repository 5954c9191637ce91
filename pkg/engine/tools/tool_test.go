package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/entrhq/crew/pkg/repo"
	"github.com/entrhq/crew/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv(t *testing.T, files map[string]string) *Env {
	t.Helper()
	guard, err := NewPathGuard(nil, []string{".git/**", ".github/workflows/**"})
	require.NoError(t, err)
	return &Env{
		Staged: types.NewStagedChanges(),
		Repo:   repo.NewInMemory(files),
		Guard:  guard,
	}
}

func dispatch(t *testing.T, env *Env, name string, input string) (types.ToolResultBlock, bool) {
	t.Helper()
	r := NewRegistry()
	return r.Dispatch(context.Background(), types.ToolUseBlock{
		ID:    "call-1",
		Name:  name,
		Input: json.RawMessage(input),
	}, env)
}

func TestReadFilePrefersStaged(t *testing.T) {
	env := newEnv(t, map[string]string{"app.go": "remote"})

	result, completing := dispatch(t, env, "read_file", `{"path":"app.go"}`)
	require.False(t, result.IsError, result.Content)
	assert.False(t, completing)
	assert.Equal(t, "remote", result.Content)

	env.Staged.Write("app.go", "staged")
	result, _ = dispatch(t, env, "read_file", `{"path":"app.go"}`)
	require.False(t, result.IsError)
	assert.Equal(t, "staged", result.Content)
}

func TestReadFileSeesStagedDeletion(t *testing.T) {
	env := newEnv(t, map[string]string{"app.go": "remote"})
	env.Staged.Delete("app.go")

	result, _ := dispatch(t, env, "read_file", `{"path":"app.go"}`)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "not found")
}

func TestWriteAndDeleteStageChanges(t *testing.T) {
	env := newEnv(t, nil)

	result, completing := dispatch(t, env, "write_file", `{"path":"pkg/new.go","content":"package pkg\n"}`)
	require.False(t, result.IsError, result.Content)
	assert.False(t, completing)

	change, ok := env.Staged.Get("pkg/new.go")
	require.True(t, ok)
	assert.Equal(t, "package pkg\n", change.Content)

	result, _ = dispatch(t, env, "delete_file", `{"path":"pkg/new.go"}`)
	require.False(t, result.IsError)
	change, ok = env.Staged.Get("pkg/new.go")
	require.True(t, ok)
	assert.True(t, change.Deleted)
}

func TestCreateFileAliasStagesWrite(t *testing.T) {
	env := newEnv(t, nil)
	result, _ := dispatch(t, env, "create_file", `{"path":"docs/readme.md","content":"# hi"}`)
	require.False(t, result.IsError, result.Content)

	change, ok := env.Staged.Get("docs/readme.md")
	require.True(t, ok)
	assert.Equal(t, "# hi", change.Content)
}

func TestGuardDeniesProtectedPaths(t *testing.T) {
	env := newEnv(t, nil)

	for _, path := range []string{".git/config", ".github/workflows/ci.yml"} {
		result, _ := dispatch(t, env, "write_file", `{"path":"`+path+`","content":"x"}`)
		assert.True(t, result.IsError, path)
		assert.Contains(t, result.Content, "denied")
	}

	// Denied patterns are separator-aware: .gitignore is not under .git/.
	result, _ := dispatch(t, env, "write_file", `{"path":".gitignore","content":"x"}`)
	assert.False(t, result.IsError, result.Content)
}

func TestGuardAllowList(t *testing.T) {
	guard, err := NewPathGuard([]string{"src/**"}, nil)
	require.NoError(t, err)
	env := newEnv(t, nil)
	env.Guard = guard

	result, _ := dispatch(t, env, "write_file", `{"path":"src/main.go","content":"x"}`)
	assert.False(t, result.IsError, result.Content)

	result, _ = dispatch(t, env, "write_file", `{"path":"vendor/dep.go","content":"x"}`)
	assert.True(t, result.IsError)
}

func TestPathTraversalRejected(t *testing.T) {
	env := newEnv(t, nil)

	for _, path := range []string{"../secrets.txt", "/etc/passwd", "a/../../b"} {
		result, _ := dispatch(t, env, "write_file", `{"path":"`+path+`","content":"x"}`)
		assert.True(t, result.IsError, path)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	env := newEnv(t, nil)
	result, completing := dispatch(t, env, "run_shell", `{}`)
	assert.True(t, result.IsError)
	assert.False(t, completing)
	assert.Contains(t, result.Content, "unknown tool")
	assert.Equal(t, "call-1", result.ToolUseID)
}

func TestDispatchInvalidInput(t *testing.T) {
	env := newEnv(t, nil)
	result, completing := dispatch(t, env, "read_file", `{"path":`)
	assert.True(t, result.IsError)
	assert.False(t, completing)
}

type panicTool struct{}

func (panicTool) Name() string           { return "boom" }
func (panicTool) Description() string    { return "always panics" }
func (panicTool) Schema() map[string]any { return objectSchema(nil) }
func (panicTool) IsCompleting() bool     { return true }
func (panicTool) Execute(context.Context, json.RawMessage, *Env) (string, error) {
	panic("kaboom")
}

func TestDispatchRecoversPanic(t *testing.T) {
	r := NewRegistry()
	r.Register(panicTool{})

	result, completing := r.Dispatch(context.Background(), types.ToolUseBlock{
		ID: "c", Name: "boom", Input: json.RawMessage(`{}`),
	}, newEnv(t, nil))

	assert.True(t, result.IsError)
	assert.False(t, completing)
	assert.Contains(t, result.Content, "kaboom")
}

func TestTaskComplete(t *testing.T) {
	env := newEnv(t, nil)

	result, completing := dispatch(t, env, "task_complete", `{"summary":"Fixed the login redirect."}`)
	require.False(t, result.IsError, result.Content)
	assert.True(t, completing)
	assert.Equal(t, "Fixed the login redirect.", env.Summary)

	result, completing = dispatch(t, env, "task_complete", `{"summary":"  "}`)
	assert.True(t, result.IsError)
	assert.False(t, completing)
}

func TestDefinitionsStable(t *testing.T) {
	defs := NewRegistry().Definitions()

	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"create_file", "delete_file", "read_file", "task_complete", "write_file"}, names)

	for _, d := range defs {
		assert.NotEmpty(t, d.Description, d.Name)
		assert.Equal(t, "object", d.Schema["type"], d.Name)
	}
}

func TestNormalizePath(t *testing.T) {
	got, err := NormalizePath("./pkg//util.go")
	require.NoError(t, err)
	assert.Equal(t, "pkg/util.go", got)

	_, err = NormalizePath("")
	assert.Error(t, err)
	_, err = NormalizePath("..")
	assert.Error(t, err)
}

func TestGuardNilAllowsNonTraversal(t *testing.T) {
	var guard *PathGuard
	assert.NoError(t, guard.Check("main.go"))
	assert.Error(t, guard.Check("../x"))
}
