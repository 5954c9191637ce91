package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrhq/crew/pkg/repo"
)

// ReadFileTool returns file content, preferring the execution's staged
// version over the repository's.
type ReadFileTool struct{}

type readFileArgs struct {
	Path string `json:"path"`
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a file from the repository. Staged changes from earlier steps are visible; committed content is returned otherwise."
}

func (t *ReadFileTool) Schema() map[string]any {
	return objectSchema(map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Repository-relative path of the file to read",
		},
	}, "path")
}

func (t *ReadFileTool) IsCompleting() bool { return false }

func (t *ReadFileTool) Execute(ctx context.Context, input json.RawMessage, env *Env) (string, error) {
	var args readFileArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("invalid read_file input: %w", err)
	}

	path, err := NormalizePath(args.Path)
	if err != nil {
		return "", err
	}

	if change, ok := env.Staged.Get(path); ok {
		if change.Deleted {
			return "", fmt.Errorf("%w: %s (deleted in staged changes)", repo.ErrNotFound, path)
		}
		return change.Content, nil
	}

	content, err := env.Repo.ReadFile(ctx, path)
	if err != nil {
		return "", err
	}
	return content, nil
}

// WriteFileTool stages full file content at a path. It is registered twice,
// as write_file and create_file; both stage an identical replacement write.
type WriteFileTool struct {
	name        string
	description string
}

type writeFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *WriteFileTool) Name() string        { return t.name }
func (t *WriteFileTool) Description() string { return t.description }

func (t *WriteFileTool) Schema() map[string]any {
	return objectSchema(map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Repository-relative path of the file to write",
		},
		"content": map[string]any{
			"type":        "string",
			"description": "Complete file content. Partial writes are not supported.",
		},
	}, "path", "content")
}

func (t *WriteFileTool) IsCompleting() bool { return false }

func (t *WriteFileTool) Execute(_ context.Context, input json.RawMessage, env *Env) (string, error) {
	var args writeFileArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("invalid %s input: %w", t.name, err)
	}

	path, err := NormalizePath(args.Path)
	if err != nil {
		return "", err
	}
	if err := env.Guard.Check(path); err != nil {
		return "", err
	}

	env.Staged.Write(path, args.Content)
	return fmt.Sprintf("Staged %d bytes at %s", len(args.Content), path), nil
}

// DeleteFileTool stages a deletion marker for a path.
type DeleteFileTool struct{}

type deleteFileArgs struct {
	Path string `json:"path"`
}

func (t *DeleteFileTool) Name() string { return "delete_file" }

func (t *DeleteFileTool) Description() string {
	return "Delete a file from the repository. The deletion is staged and applied when the task completes."
}

func (t *DeleteFileTool) Schema() map[string]any {
	return objectSchema(map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Repository-relative path of the file to delete",
		},
	}, "path")
}

func (t *DeleteFileTool) IsCompleting() bool { return false }

func (t *DeleteFileTool) Execute(_ context.Context, input json.RawMessage, env *Env) (string, error) {
	var args deleteFileArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("invalid delete_file input: %w", err)
	}

	path, err := NormalizePath(args.Path)
	if err != nil {
		return "", err
	}
	if err := env.Guard.Check(path); err != nil {
		return "", err
	}

	env.Staged.Delete(path)
	return fmt.Sprintf("Staged deletion of %s", path), nil
}
