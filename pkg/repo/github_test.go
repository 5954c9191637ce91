package repo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/entrhq/crew/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGitHub serves just enough of the GitHub API for the client's read and
// commit flows.
type stubGitHub struct {
	files map[string]string

	createdTree   map[string]any
	createdCommit map[string]any
	updatedRef    map[string]any
}

func (s *stubGitHub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case r.Method == http.MethodGet && strings.Contains(path, "/contents/"):
			name := path[strings.Index(path, "/contents/")+len("/contents/"):]
			content, ok := s.files[name]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"message":"Not Found"}`)
				return
			}
			fmt.Fprintf(w, `{"type":"file","encoding":"base64","content":%q}`,
				base64.StdEncoding.EncodeToString([]byte(content)))

		case r.Method == http.MethodGet && strings.Contains(path, "/git/ref/"):
			fmt.Fprint(w, `{"ref":"refs/heads/main","object":{"sha":"base-sha","type":"commit"}}`)

		case r.Method == http.MethodGet && strings.Contains(path, "/git/commits/"):
			fmt.Fprint(w, `{"sha":"base-sha","tree":{"sha":"base-tree"}}`)

		case r.Method == http.MethodPost && strings.HasSuffix(path, "/git/trees"):
			require.NoError(t, json.NewDecoder(r.Body).Decode(&s.createdTree))
			fmt.Fprint(w, `{"sha":"new-tree"}`)

		case r.Method == http.MethodPost && strings.HasSuffix(path, "/git/commits"):
			require.NoError(t, json.NewDecoder(r.Body).Decode(&s.createdCommit))
			fmt.Fprint(w, `{"sha":"new-commit"}`)

		case r.Method == http.MethodPatch && strings.Contains(path, "/git/refs/"):
			require.NoError(t, json.NewDecoder(r.Body).Decode(&s.updatedRef))
			fmt.Fprint(w, `{"ref":"refs/heads/main","object":{"sha":"new-commit"}}`)

		default:
			t.Errorf("unexpected request: %s %s", r.Method, path)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}

func newStubClient(t *testing.T, stub *stubGitHub) *GitHub {
	t.Helper()
	server := httptest.NewServer(stub.handler(t))
	t.Cleanup(server.Close)

	g, err := NewGitHub("ghp_test", "entrhq", "demo", "main")
	require.NoError(t, err)
	g, err = g.WithBaseURL(server.URL + "/")
	require.NoError(t, err)
	return g
}

func TestGitHubReadFile(t *testing.T) {
	stub := &stubGitHub{files: map[string]string{"main.go": "package main\n"}}
	g := newStubClient(t, stub)

	content, err := g.ReadFile(context.Background(), "main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", content)

	_, err = g.ReadFile(context.Background(), "missing.go")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGitHubCommit(t *testing.T) {
	stub := &stubGitHub{files: map[string]string{}}
	g := newStubClient(t, stub)

	staged := types.NewStagedChanges()
	staged.Write("a.txt", "hello")
	staged.Delete("old.txt")

	result, err := g.Commit(context.Background(), staged, "[atlas] Fix login redirect")
	require.NoError(t, err)
	assert.Equal(t, "new-commit", result.SHA)
	assert.Equal(t, 2, result.FilesCommitted)

	// Tree carries the write with content and the deletion without.
	entries := stub.createdTree["tree"].([]any)
	require.Len(t, entries, 2)

	byPath := map[string]map[string]any{}
	for _, e := range entries {
		entry := e.(map[string]any)
		byPath[entry["path"].(string)] = entry
	}
	assert.Equal(t, "hello", byPath["a.txt"]["content"])
	_, hasContent := byPath["old.txt"]["content"]
	assert.False(t, hasContent)

	// Commit parented on the branch head, ref advanced to the new commit.
	assert.Equal(t, "[atlas] Fix login redirect", stub.createdCommit["message"])
	assert.Equal(t, "new-commit", stub.updatedRef["sha"])
}

func TestGitHubCommitRejectsEmpty(t *testing.T) {
	g, err := NewGitHub("ghp_test", "entrhq", "demo", "main")
	require.NoError(t, err)

	_, err = g.Commit(context.Background(), types.NewStagedChanges(), "msg")
	assert.Error(t, err)
}

func TestNewGitHubValidation(t *testing.T) {
	_, err := NewGitHub("", "o", "r", "main")
	assert.Error(t, err)
	_, err = NewGitHub("tok", "", "r", "main")
	assert.Error(t, err)
}

func TestInMemoryClient(t *testing.T) {
	m := NewInMemory(map[string]string{"readme.md": "# hi"})

	content, err := m.ReadFile(context.Background(), "readme.md")
	require.NoError(t, err)
	assert.Equal(t, "# hi", content)

	_, err = m.ReadFile(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))

	staged := types.NewStagedChanges()
	staged.Write("new.txt", "x")
	staged.Delete("readme.md")

	result, err := m.Commit(context.Background(), staged, "msg")
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesCommitted)

	_, ok := m.File("readme.md")
	assert.False(t, ok)
	got, _ := m.File("new.txt")
	assert.Equal(t, "x", got)
	assert.Equal(t, []string{"msg"}, m.CommitMessages())
}
