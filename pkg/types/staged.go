package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

// StagedChange is one pending edit held in an execution's buffer: either new
// file content or an explicit deletion marker. The marker is distinct from
// absence so commit time knows to remove the path rather than ignore it.
type StagedChange struct {
	Content string `json:"content,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// StagedChanges maps repository paths to their pending edits. The buffer is
// mutated only by tool handlers during a step and is promoted to a durable
// commit at most once, when the execution completes.
type StagedChanges map[string]StagedChange

// NewStagedChanges returns an empty buffer.
func NewStagedChanges() StagedChanges {
	return make(StagedChanges)
}

// Write upserts content for a path, clearing any prior deletion marker.
func (s StagedChanges) Write(path, content string) {
	s[path] = StagedChange{Content: content}
}

// Delete records a deletion marker for a path.
func (s StagedChanges) Delete(path string) {
	s[path] = StagedChange{Deleted: true}
}

// Get returns the staged change for a path, if any.
func (s StagedChanges) Get(path string) (StagedChange, bool) {
	c, ok := s[path]
	return c, ok
}

// Paths returns the staged paths in sorted order.
func (s StagedChanges) Paths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Clone returns an independent copy of the buffer.
func (s StagedChanges) Clone() StagedChanges {
	out := make(StagedChanges, len(s))
	for p, c := range s {
		out[p] = c
	}
	return out
}

// MarshalStagedChanges serializes the buffer for persistence.
func MarshalStagedChanges(s StagedChanges) ([]byte, error) {
	if s == nil {
		s = StagedChanges{}
	}
	return json.Marshal(s)
}

// UnmarshalStagedChanges restores a buffer from its persisted form. An empty
// blob yields an empty buffer.
func UnmarshalStagedChanges(data []byte) (StagedChanges, error) {
	if len(data) == 0 {
		return NewStagedChanges(), nil
	}
	var s StagedChanges
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode staged changes: %w", err)
	}
	if s == nil {
		s = NewStagedChanges()
	}
	return s, nil
}
