// Package config loads and validates engine configuration.
//
// Configuration is an explicit struct handed to the components that need it.
// Nothing in the engine reads ambient global state; environment variables
// are consulted only here, at load time.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMissingConfiguration indicates required credentials or repository
// settings are absent. Callers check with errors.Is.
var ErrMissingConfiguration = errors.New("missing configuration")

// Config carries every external setting the engine needs.
type Config struct {
	// Completion service.
	CompletionAPIKey  string `yaml:"completion_api_key"`
	CompletionBaseURL string `yaml:"completion_base_url"`
	Model             string `yaml:"model"`

	// Target repository.
	GitHubToken string `yaml:"github_token"`
	RepoOwner   string `yaml:"repo_owner"`
	RepoName    string `yaml:"repo_name"`
	Branch      string `yaml:"branch"`

	// Engine limits.
	MaxSteps         int `yaml:"max_steps"`
	MaxTokensPerCall int `yaml:"max_tokens_per_call"`
	Workers          int `yaml:"workers"`

	// Path guard patterns for staged writes.
	AllowedPaths []string `yaml:"allowed_paths"`
	DeniedPaths  []string `yaml:"denied_paths"`

	// DeadEndPolicy decides what happens when a step produces neither a
	// tool call nor a completion signal: "complete" or "fail".
	DeadEndPolicy string `yaml:"dead_end_policy"`

	// Storage and personas.
	DBPath       string `yaml:"db_path"`
	PersonasPath string `yaml:"personas_path"`
}

// Defaults that apply when neither file nor environment sets a value.
const (
	DefaultModel            = "gpt-4o"
	DefaultBranch           = "main"
	DefaultMaxSteps         = 50
	DefaultMaxTokensPerCall = 4096
	DefaultWorkers          = 4
	DefaultDeadEndPolicy    = "complete"
)

// defaultDeniedPaths are never writable by agents regardless of user config.
var defaultDeniedPaths = []string{".git/**", ".github/workflows/**"}

// Load reads configuration from an optional YAML file, applies environment
// overrides, and fills defaults. A missing file is not an error; missing
// required values surface later via Validate.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setIfEnv(&c.CompletionAPIKey, "OPENAI_API_KEY")
	setIfEnv(&c.CompletionBaseURL, "OPENAI_BASE_URL")
	setIfEnv(&c.Model, "CREW_MODEL")
	setIfEnv(&c.GitHubToken, "GITHUB_TOKEN")
	setIfEnv(&c.RepoOwner, "CREW_REPO_OWNER")
	setIfEnv(&c.RepoName, "CREW_REPO_NAME")
	setIfEnv(&c.Branch, "CREW_BRANCH")
	setIfEnv(&c.DBPath, "CREW_DB_PATH")
	setIfEnv(&c.PersonasPath, "CREW_PERSONAS_PATH")
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Branch == "" {
		c.Branch = DefaultBranch
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.MaxTokensPerCall <= 0 {
		c.MaxTokensPerCall = DefaultMaxTokensPerCall
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.DeadEndPolicy == "" {
		c.DeadEndPolicy = DefaultDeadEndPolicy
	}
	if c.DBPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.DBPath = filepath.Join(home, ".crew", "crew.db")
		} else {
			c.DBPath = "crew.db"
		}
	}
	c.DeniedPaths = append(c.DeniedPaths, defaultDeniedPaths...)
}

// Validate checks that every required credential and repository setting is
// present. All missing fields are reported together so the operator can fix
// them in one pass.
func (c *Config) Validate() error {
	var missing []string
	if c.CompletionAPIKey == "" {
		missing = append(missing, "completion_api_key (OPENAI_API_KEY)")
	}
	if c.GitHubToken == "" {
		missing = append(missing, "github_token (GITHUB_TOKEN)")
	}
	if c.RepoOwner == "" {
		missing = append(missing, "repo_owner (CREW_REPO_OWNER)")
	}
	if c.RepoName == "" {
		missing = append(missing, "repo_name (CREW_REPO_NAME)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfiguration, strings.Join(missing, ", "))
	}

	switch c.DeadEndPolicy {
	case "complete", "fail":
	default:
		return fmt.Errorf("invalid dead_end_policy %q (want \"complete\" or \"fail\")", c.DeadEndPolicy)
	}
	return nil
}
