// Package repo provides read and atomic multi-file commit access to the
// source-control backend an execution works against.
package repo

import (
	"context"
	"errors"

	"github.com/entrhq/crew/pkg/types"
)

// ErrNotFound indicates a path exists neither in the repository nor, for
// staged reads, in the staging buffer.
var ErrNotFound = errors.New("file not found")

// CommitResult describes a successful commit.
type CommitResult struct {
	SHA            string
	FilesCommitted int
}

// Client is the repository access surface the engine depends on.
//
// Commit is atomic: every listed path lands in exactly one new commit on the
// target branch, or none do. A change with the Deleted marker removes the
// path; all others create or replace file content.
type Client interface {
	ReadFile(ctx context.Context, path string) (string, error)
	Commit(ctx context.Context, changes types.StagedChanges, message string) (*CommitResult, error)
}
