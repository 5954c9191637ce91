package repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/crew/pkg/types"
	"github.com/google/uuid"
)

// InMemory is a Client backed by a map. It exists for tests and dry runs;
// commits mutate the map atomically under a lock.
type InMemory struct {
	mu      sync.Mutex
	files   map[string]string
	commits []string

	// ReadErr and CommitErr, when set, are returned by the corresponding
	// call to simulate backend failures.
	ReadErr   error
	CommitErr error
}

// NewInMemory creates an in-memory repository seeded with the given files.
func NewInMemory(files map[string]string) *InMemory {
	m := &InMemory{files: make(map[string]string)}
	for path, content := range files {
		m.files[path] = content
	}
	return m
}

// ReadFile returns the stored content for a path.
func (m *InMemory) ReadFile(_ context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ReadErr != nil {
		return "", m.ReadErr
	}
	content, ok := m.files[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return content, nil
}

// Commit applies all changes at once and records a synthetic commit SHA.
func (m *InMemory) Commit(_ context.Context, changes types.StagedChanges, message string) (*CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CommitErr != nil {
		return nil, m.CommitErr
	}
	if len(changes) == 0 {
		return nil, fmt.Errorf("no changes to commit")
	}

	for path, change := range changes {
		if change.Deleted {
			delete(m.files, path)
			continue
		}
		m.files[path] = change.Content
	}

	sha := uuid.New().String()
	m.commits = append(m.commits, message)
	return &CommitResult{SHA: sha, FilesCommitted: len(changes)}, nil
}

// File returns the current content of a path and whether it exists.
func (m *InMemory) File(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[path]
	return content, ok
}

// CommitMessages returns the messages of all commits in order.
func (m *InMemory) CommitMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.commits))
	copy(out, m.commits)
	return out
}
