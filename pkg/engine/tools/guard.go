package tools

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// PathGuard enforces which repository paths staged mutations may touch.
// Denied patterns take precedence; an empty allow list permits everything
// not denied.
type PathGuard struct {
	allowed []glob.Glob
	denied  []glob.Glob
}

// NewPathGuard compiles allow and deny glob patterns. Patterns use '/' as a
// separator-aware wildcard boundary, so ".git/**" matches the whole tree
// under .git but not a file literally named ".gitignore".
func NewPathGuard(allowed, denied []string) (*PathGuard, error) {
	pg := &PathGuard{}

	for _, pattern := range allowed {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid allowed pattern %q: %w", pattern, err)
		}
		pg.allowed = append(pg.allowed, g)
	}
	for _, pattern := range denied {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid denied pattern %q: %w", pattern, err)
		}
		pg.denied = append(pg.denied, g)
	}

	return pg, nil
}

// Check validates a repository-relative path for a staged mutation. It
// rejects absolute paths, parent traversal, and anything the patterns deny.
func (pg *PathGuard) Check(path string) error {
	cleaned, err := NormalizePath(path)
	if err != nil {
		return err
	}

	if pg != nil {
		for _, pattern := range pg.denied {
			if pattern.Match(cleaned) {
				return fmt.Errorf("path %s is denied by policy", cleaned)
			}
		}
		if len(pg.allowed) > 0 {
			for _, pattern := range pg.allowed {
				if pattern.Match(cleaned) {
					return nil
				}
			}
			return fmt.Errorf("path %s does not match any allowed pattern", cleaned)
		}
	}

	return nil
}

// NormalizePath cleans a repository-relative path and rejects paths that
// escape the repository root.
func NormalizePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("path must be repository-relative: %s", path)
	}

	cleaned := filepath.ToSlash(filepath.Clean(path))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path escapes the repository root: %s", path)
	}
	return cleaned, nil
}
