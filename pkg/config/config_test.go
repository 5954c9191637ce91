package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "CREW_MODEL", "GITHUB_TOKEN",
		"CREW_REPO_OWNER", "CREW_REPO_NAME", "CREW_BRANCH", "CREW_DB_PATH",
		"CREW_PERSONAS_PATH",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultBranch, cfg.Branch)
	assert.Equal(t, DefaultMaxSteps, cfg.MaxSteps)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, "complete", cfg.DeadEndPolicy)
	assert.Contains(t, cfg.DeniedPaths, ".git/**")
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "crew.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: gpt-4o-mini
repo_owner: entrhq
repo_name: crew
max_steps: 10
denied_paths:
  - "vendor/**"
`), 0600))

	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("CREW_MODEL", "gpt-4.1")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Environment wins over file.
	assert.Equal(t, "gpt-4.1", cfg.Model)
	assert.Equal(t, "ghp_test", cfg.GitHubToken)
	assert.Equal(t, "entrhq", cfg.RepoOwner)
	assert.Equal(t, 10, cfg.MaxSteps)
	assert.Contains(t, cfg.DeniedPaths, "vendor/**")
	assert.Contains(t, cfg.DeniedPaths, ".git/**")
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.NoError(t, err)
}

func TestValidateReportsAllMissing(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingConfiguration))
	assert.Contains(t, err.Error(), "completion_api_key")
	assert.Contains(t, err.Error(), "github_token")
	assert.Contains(t, err.Error(), "repo_owner")
	assert.Contains(t, err.Error(), "repo_name")
}

func TestValidateDeadEndPolicy(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.CompletionAPIKey = "sk-test"
	cfg.GitHubToken = "ghp_test"
	cfg.RepoOwner = "entrhq"
	cfg.RepoName = "crew"

	require.NoError(t, cfg.Validate())

	cfg.DeadEndPolicy = "retry"
	assert.Error(t, cfg.Validate())
}
