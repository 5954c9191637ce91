// Package persona resolves agent identities and builds the system prompt and
// initial conversation turn for an execution.
package persona

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownAgent indicates the named agent has no registered persona.
var ErrUnknownAgent = errors.New("unknown agent")

// Persona describes one agent identity: who it is and how it should work.
type Persona struct {
	Name         string   `yaml:"name"`
	Role         string   `yaml:"role"`
	Description  string   `yaml:"description"`
	FocusAreas   []string `yaml:"focus_areas"`
	Instructions string   `yaml:"instructions"`
}

// Registry holds the available personas, keyed by lowercase name.
type Registry struct {
	personas map[string]Persona
}

// NewRegistry creates a registry seeded with the built-in roster.
func NewRegistry() *Registry {
	r := &Registry{personas: make(map[string]Persona)}
	for _, p := range builtinPersonas {
		r.register(p)
	}
	return r
}

func (r *Registry) register(p Persona) {
	r.personas[strings.ToLower(p.Name)] = p
}

// LoadFile merges persona definitions from a YAML file into the registry.
// File entries override built-ins with the same name.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read personas file: %w", err)
	}

	var doc struct {
		Personas []Persona `yaml:"personas"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse personas file %s: %w", path, err)
	}

	for _, p := range doc.Personas {
		if p.Name == "" {
			return fmt.Errorf("personas file %s: persona with empty name", path)
		}
		r.register(p)
	}
	return nil
}

// Resolve returns the persona for an agent name, case-insensitively.
func (r *Registry) Resolve(name string) (Persona, error) {
	p, ok := r.personas[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
	}
	return p, nil
}

// Names returns the registered persona names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.personas))
	for _, p := range r.personas {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// builtinPersonas is the default roster. Custom personas can extend or
// override it via LoadFile.
var builtinPersonas = []Persona{
	{
		Name:        "atlas",
		Role:        "Senior backend engineer",
		Description: "Pragmatic systems engineer focused on correctness and small, reviewable changes.",
		FocusAreas:  []string{"services", "data models", "error handling", "tests"},
		Instructions: "Prefer the smallest change that fully solves the task. " +
			"Keep existing code style and add tests next to the code they cover.",
	},
	{
		Name:        "nova",
		Role:        "Frontend engineer",
		Description: "Product-minded engineer who keeps UI code accessible and consistent.",
		FocusAreas:  []string{"components", "styling", "accessibility"},
		Instructions: "Follow the project's component conventions. " +
			"Never introduce a new styling approach when one already exists.",
	},
	{
		Name:        "sentry",
		Role:        "Code reviewer and maintainer",
		Description: "Careful maintainer who favors clarity, docs, and backwards compatibility.",
		FocusAreas:  []string{"refactoring", "documentation", "compatibility"},
		Instructions: "Explain notable decisions in the task summary. " +
			"Do not change public behavior unless the task explicitly asks for it.",
	},
}
