package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/crew/pkg/types"
	"github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"
)

const fileMode = "100644"

// GitHub implements Client against the GitHub API. Commits go through the
// Git Data API (tree + commit + ref update) so a multi-file change is one
// atomic commit.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
	branch string
}

// NewGitHub creates a GitHub client for one repository and branch.
func NewGitHub(token, owner, repo, branch string) (*GitHub, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("repository owner and name are required")
	}
	if branch == "" {
		branch = "main"
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)

	return &GitHub{
		client: github.NewClient(tc),
		owner:  owner,
		repo:   repo,
		branch: branch,
	}, nil
}

// WithBaseURL points the client at a GitHub Enterprise or test server.
func (g *GitHub) WithBaseURL(baseURL string) (*GitHub, error) {
	client, err := g.client.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	g.client = client
	return g, nil
}

// ReadFile fetches a file's content from the target branch.
func (g *GitHub) ReadFile(ctx context.Context, path string) (string, error) {
	opts := &github.RepositoryContentGetOptions{Ref: g.branch}
	file, _, resp, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, path, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if file == nil {
		// Path resolved to a directory listing.
		return "", fmt.Errorf("%w: %s is not a file", ErrNotFound, path)
	}

	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return content, nil
}

// Commit writes all staged changes as one commit on the target branch and
// returns the new commit SHA. Deletion markers remove their paths.
func (g *GitHub) Commit(ctx context.Context, changes types.StagedChanges, message string) (*CommitResult, error) {
	if len(changes) == 0 {
		return nil, fmt.Errorf("no changes to commit")
	}

	ref, _, err := g.client.Git.GetRef(ctx, g.owner, g.repo, "heads/"+g.branch)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve branch %s: %w", g.branch, err)
	}
	baseSHA := ref.Object.GetSHA()

	baseCommit, _, err := g.client.Git.GetCommit(ctx, g.owner, g.repo, baseSHA)
	if err != nil {
		return nil, fmt.Errorf("failed to load base commit: %w", err)
	}

	entries := make([]*github.TreeEntry, 0, len(changes))
	for _, path := range changes.Paths() {
		change := changes[path]
		entry := &github.TreeEntry{
			Path: github.Ptr(path),
			Mode: github.Ptr(fileMode),
			Type: github.Ptr("blob"),
		}
		if !change.Deleted {
			entry.Content = github.Ptr(change.Content)
		}
		// A nil SHA with nil content marks the entry as a deletion.
		entries = append(entries, entry)
	}

	tree, _, err := g.client.Git.CreateTree(ctx, g.owner, g.repo, baseCommit.Tree.GetSHA(), entries)
	if err != nil {
		return nil, fmt.Errorf("failed to create tree: %w", err)
	}

	commit := &github.Commit{
		Message: github.Ptr(message),
		Tree:    tree,
		Parents: []*github.Commit{{SHA: github.Ptr(baseSHA)}},
	}
	created, _, err := g.client.Git.CreateCommit(ctx, g.owner, g.repo, commit, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create commit: %w", err)
	}

	ref.Object.SHA = created.SHA
	if _, _, err := g.client.Git.UpdateRef(ctx, g.owner, g.repo, ref, false); err != nil {
		return nil, fmt.Errorf("failed to update branch %s: %w", g.branch, err)
	}

	return &CommitResult{
		SHA:            created.GetSHA(),
		FilesCommitted: len(entries),
	}, nil
}
