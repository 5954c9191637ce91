// Package engine drives step-based executions: a resumable state machine
// that repeatedly calls a completion provider, applies structured tool calls
// to a staged-changes buffer, and promotes the buffer to one atomic commit
// when the agent declares the task complete.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/crew/pkg/config"
	"github.com/entrhq/crew/pkg/engine/store"
	"github.com/entrhq/crew/pkg/engine/tools"
	"github.com/entrhq/crew/pkg/llm"
	"github.com/entrhq/crew/pkg/llm/tokenizer"
	"github.com/entrhq/crew/pkg/logging"
	"github.com/entrhq/crew/pkg/persona"
	"github.com/entrhq/crew/pkg/repo"
	"github.com/entrhq/crew/pkg/types"
	"github.com/google/uuid"
)

// DeadEndPolicy decides what happens when a step produces neither a tool
// call nor a completion signal.
type DeadEndPolicy string

const (
	// DeadEndComplete marks the execution done, treating the silence as an
	// implicit completion. No commit is made.
	DeadEndComplete DeadEndPolicy = "complete"

	// DeadEndFail marks the execution failed instead of guessing.
	DeadEndFail DeadEndPolicy = "fail"
)

// RepoFactory builds a repository client for one execution's target.
type RepoFactory func(owner, name, branch string) (repo.Client, error)

// Engine owns the execution lifecycle: controller, step executor and the
// worker pool that drains scheduled steps.
type Engine struct {
	cfg      *config.Config
	store    store.Store
	provider llm.Provider
	personas *persona.Registry
	registry *tools.Registry
	guard    *tools.PathGuard
	repoFor  RepoFactory
	logger   *logging.Logger
	tok      *tokenizer.Tokenizer
	sink     *logSink
	sched    *scheduler
	deadEnd  DeadEndPolicy
}

// Option configures an Engine.
type Option func(*Engine)

// WithProvider overrides the completion provider.
func WithProvider(p llm.Provider) Option {
	return func(e *Engine) { e.provider = p }
}

// WithRepoFactory overrides how repository clients are built.
func WithRepoFactory(f RepoFactory) Option {
	return func(e *Engine) { e.repoFor = f }
}

// WithPersonas overrides the persona registry.
func WithPersonas(r *persona.Registry) Option {
	return func(e *Engine) { e.personas = r }
}

// WithToolRegistry overrides the tool registry.
func WithToolRegistry(r *tools.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithLogger overrides the process logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTokenizer supplies a tokenizer for prompt-size estimation and tool
// result truncation. Without one, both are skipped.
func WithTokenizer(t *tokenizer.Tokenizer) Option {
	return func(e *Engine) { e.tok = t }
}

// New builds an Engine and starts its worker pool.
func New(cfg *config.Config, st store.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:      cfg,
		store:    st,
		personas: persona.NewRegistry(),
		registry: tools.NewRegistry(),
		deadEnd:  DeadEndPolicy(cfg.DeadEndPolicy),
	}
	if e.deadEnd != DeadEndFail {
		e.deadEnd = DeadEndComplete
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		logger, err := logging.NewLogger("engine")
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		e.logger = logger
	}

	guard, err := tools.NewPathGuard(cfg.AllowedPaths, cfg.DeniedPaths)
	if err != nil {
		return nil, fmt.Errorf("invalid path policy: %w", err)
	}
	e.guard = guard

	if e.repoFor == nil {
		token := cfg.GitHubToken
		e.repoFor = func(owner, name, branch string) (repo.Client, error) {
			return repo.NewGitHub(token, owner, name, branch)
		}
	}

	e.sink = newLogSink(st, e.logger)
	e.sched = newScheduler(cfg.Workers, e.runStep)
	return e, nil
}

// Close drains in-flight steps and shuts the worker pool down.
func (e *Engine) Close() {
	e.sched.Close()
}

// StartRequest describes a new execution.
type StartRequest struct {
	TaskID      string
	Title       string
	Description string
	Priority    string
	Labels      []string

	AgentName string
	Model     string
	Branch    string
	MaxSteps  int
}

// StartResult is returned by Start as soon as the execution is scheduled.
type StartResult struct {
	ExecutionID string
	Status      string
}

// Start creates an execution and schedules its first step. It validates the
// persona and required credentials up front and creates nothing on failure;
// it never blocks on model or repository I/O.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	p, err := e.personas.Resolve(req.AgentName)
	if err != nil {
		return nil, err
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("task title is required")
	}

	branch := req.Branch
	if branch == "" {
		branch = e.cfg.Branch
	}
	model := req.Model
	if model == "" {
		model = e.cfg.Model
	}
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = e.cfg.MaxSteps
	}
	if maxSteps <= 0 {
		maxSteps = types.DefaultMaxSteps
	}
	taskID := req.TaskID
	if taskID == "" {
		taskID = uuid.New().String()
	}

	initialTurn := persona.BuildInitialTurn(persona.Task{
		ID:          taskID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Labels:      req.Labels,
	})

	exec := &types.Execution{
		ID:           uuid.New().String(),
		TaskID:       taskID,
		TaskTitle:    req.Title,
		AgentName:    p.Name,
		Status:       types.StatusRunning,
		MaxSteps:     maxSteps,
		Conversation: []*types.Message{types.NewUserMessage(initialTurn)},
		Staged:       types.NewStagedChanges(),
		Model:        model,
		RepoOwner:    e.cfg.RepoOwner,
		RepoName:     e.cfg.RepoName,
		Branch:       branch,
		StartedAt:    time.Now().UTC(),
	}

	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}

	e.sink.System(ctx, exec.ID, 0, fmt.Sprintf("%s started on task %q (%s/%s@%s, model %s, max %d steps)",
		p.Name, req.Title, exec.RepoOwner, exec.RepoName, exec.Branch, model, maxSteps))

	e.sched.Enqueue(stepJob{
		executionID:  exec.ID,
		systemPrompt: e.systemPrompt(p, exec),
	})

	e.logger.Infof("execution %s started (agent=%s task=%s)", exec.ID, p.Name, taskID)
	return &StartResult{ExecutionID: exec.ID, Status: "started"}, nil
}

// Stop requests cooperative cancellation of a running execution. The status
// flips immediately; an in-flight step observes it at the top of the next
// scheduled step.
func (e *Engine) Stop(ctx context.Context, executionID string) error {
	if err := e.store.MarkStopped(ctx, executionID); err != nil {
		return err
	}
	e.sink.System(ctx, executionID, 0, "stop requested")
	e.logger.Infof("execution %s stopped", executionID)
	return nil
}

// Resume re-schedules every execution still marked running, picking up work
// orphaned by a process restart. It returns how many were scheduled.
func (e *Engine) Resume(ctx context.Context) (int, error) {
	running, err := e.store.ListRunning(ctx)
	if err != nil {
		return 0, err
	}

	scheduled := 0
	for _, exec := range running {
		p, err := e.personas.Resolve(exec.AgentName)
		if err != nil {
			e.sink.Error(ctx, exec.ID, exec.CurrentStep, fmt.Sprintf("cannot resume: %v", err))
			if err := e.store.MarkFailed(ctx, exec.ID, fmt.Sprintf("unknown agent %q at resume", exec.AgentName)); err != nil {
				e.logger.Errorf("failed to mark execution %s: %v", exec.ID, err)
			}
			continue
		}

		e.sink.System(ctx, exec.ID, exec.CurrentStep, fmt.Sprintf("resumed at step %d", exec.CurrentStep))
		e.sched.Enqueue(stepJob{
			executionID:  exec.ID,
			systemPrompt: e.systemPrompt(p, exec),
		})
		scheduled++
	}
	return scheduled, nil
}

// Status returns an execution's current state.
func (e *Engine) Status(ctx context.Context, executionID string) (*types.Execution, error) {
	return e.store.GetExecution(ctx, executionID)
}

// List returns recent executions, newest first.
func (e *Engine) List(ctx context.Context, limit int) ([]*types.Execution, error) {
	return e.store.ListExecutions(ctx, limit)
}

// Logs returns an execution's log stream in append order.
func (e *Engine) Logs(ctx context.Context, executionID string) ([]*types.LogEntry, error) {
	return e.store.ListLogs(ctx, executionID)
}

func (e *Engine) systemPrompt(p persona.Persona, exec *types.Execution) string {
	return persona.NewPromptBuilder(p).
		WithRepoContext(persona.RepoContext{
			Owner:  exec.RepoOwner,
			Name:   exec.RepoName,
			Branch: exec.Branch,
		}).
		Build()
}

// commitSubjectCap bounds the commit subject line; the summary rides in the
// body where length does not matter.
const commitSubjectCap = 72

func commitMessage(agentName, taskTitle, summary string) string {
	subject := fmt.Sprintf("[%s] %s", agentName, taskTitle)
	if len(subject) > commitSubjectCap {
		subject = subject[:commitSubjectCap-3] + "..."
	}
	if summary == "" {
		return subject
	}
	return subject + "\n\n" + summary
}
