package engine

import (
	"context"
	"fmt"

	"github.com/entrhq/crew/pkg/engine/tools"
	"github.com/entrhq/crew/pkg/llm"
	"github.com/entrhq/crew/pkg/repo"
	"github.com/entrhq/crew/pkg/types"
)

// toolResultTokenBudget bounds how much of a tool result is echoed back into
// the conversation. Results beyond it waste the next call's context window.
const toolResultTokenBudget = 2000

// runStep executes one scheduled step. It is the only mutator of an
// execution's state, and runs at most once concurrently per execution id
// because the next step is enqueued only after this one finishes.
func (e *Engine) runStep(job stepJob) {
	ctx := context.Background()

	exec, err := e.store.GetExecution(ctx, job.executionID)
	if err != nil {
		e.logger.Errorf("step skipped, cannot load execution %s: %v", job.executionID, err)
		return
	}

	// Cooperative cancellation and any other status change is observed
	// here. The halt is idempotent: log it and touch nothing.
	if exec.Status != types.StatusRunning {
		e.sink.System(ctx, exec.ID, exec.CurrentStep, fmt.Sprintf("halt: execution is %s", exec.Status))
		return
	}

	if exec.CurrentStep >= exec.MaxSteps {
		reason := fmt.Sprintf("step budget exceeded (%d steps)", exec.MaxSteps)
		e.sink.Error(ctx, exec.ID, exec.CurrentStep, reason)
		e.markFailed(ctx, exec.ID, reason)
		return
	}

	step := exec.CurrentStep + 1

	// An execution must never stay running after an unhandled panic.
	defer func() {
		if p := recover(); p != nil {
			reason := fmt.Sprintf("panic at step %d: %v", step, p)
			e.sink.Error(ctx, exec.ID, step, reason)
			e.markFailed(ctx, exec.ID, reason)
		}
	}()

	e.executeStep(ctx, job, exec, step)
}

func (e *Engine) executeStep(ctx context.Context, job stepJob, exec *types.Execution, step int) {
	repoClient, err := e.repoFor(exec.RepoOwner, exec.RepoName, exec.Branch)
	if err != nil {
		reason := fmt.Sprintf("cannot build repository client: %v", err)
		e.sink.Error(ctx, exec.ID, step, reason)
		e.markFailed(ctx, exec.ID, reason)
		return
	}

	env := &tools.Env{
		Staged: exec.Staged,
		Repo:   repoClient,
		Guard:  e.guard,
	}

	if e.tok != nil {
		e.logger.Debugf("execution %s step %d: prompt ~%d tokens", exec.ID, step, e.tok.CountMessages(exec.Conversation))
	}

	// The provider call is the step's only suspension point. A transport
	// error is fatal; retry policy belongs to whoever started us.
	resp, err := e.provider.Complete(ctx, &llm.Request{
		Model:     exec.Model,
		System:    job.systemPrompt,
		Messages:  exec.Conversation,
		Tools:     e.registry.Definitions(),
		MaxTokens: e.cfg.MaxTokensPerCall,
	})
	if err != nil {
		reason := fmt.Sprintf("completion call failed: %v", err)
		e.sink.Error(ctx, exec.ID, step, reason)
		e.markFailed(ctx, exec.ID, reason)
		return
	}

	var (
		results     []types.ToolResultBlock
		toolInvoked bool
		completed   bool
	)
	for _, block := range resp.Content {
		switch b := block.(type) {
		case types.TextBlock:
			e.sink.Message(ctx, exec.ID, step, b.Text)
		case types.ToolUseBlock:
			toolInvoked = true
			e.sink.ToolCall(ctx, exec.ID, step, b.Name, string(b.Input))

			result, completing := e.registry.Dispatch(ctx, b, env)
			if e.tok != nil {
				if trimmed, did := e.tok.Truncate(result.Content, toolResultTokenBudget); did {
					result.Content = trimmed
				}
			}
			e.sink.ToolResult(ctx, exec.ID, step, result)

			if completing {
				completed = true
			}
			results = append(results, result)
		}
	}

	exec.Conversation = append(exec.Conversation, types.NewAssistantMessage(resp.Content...))
	if len(results) > 0 {
		exec.Conversation = append(exec.Conversation, types.NewToolResultsMessage(results...))
	}
	exec.CurrentStep = step
	exec.TokensUsed += resp.Usage.InputTokens + resp.Usage.OutputTokens
	exec.FilesChanged = exec.Staged.Paths()

	// The one atomic state write for this step.
	if err := e.store.UpdateExecutionState(ctx, exec); err != nil {
		reason := fmt.Sprintf("failed to persist step %d: %v", step, err)
		e.sink.Error(ctx, exec.ID, step, reason)
		e.markFailed(ctx, exec.ID, reason)
		return
	}

	switch {
	case completed:
		e.finishCompleted(ctx, exec, step, env.Summary, repoClient)
	case toolInvoked:
		if !e.sched.Enqueue(stepJob{executionID: exec.ID, systemPrompt: job.systemPrompt}) {
			e.logger.Warnf("scheduler closed; execution %s parked at step %d", exec.ID, step)
		}
	default:
		e.finishDeadEnd(ctx, exec, step)
	}
}

// finishCompleted handles the explicit completion signal: commit the staged
// buffer (at most once), then mark done. A commit failure is non-fatal; the
// changes stay staged and the execution still completes without a commit id.
func (e *Engine) finishCompleted(ctx context.Context, exec *types.Execution, step int, summary string, repoClient repo.Client) {
	commitID := ""
	if len(exec.Staged) > 0 {
		message := commitMessage(exec.AgentName, exec.TaskTitle, summary)
		result, err := repoClient.Commit(ctx, exec.Staged, message)
		if err != nil {
			e.sink.Error(ctx, exec.ID, step, fmt.Sprintf("commit failed: %v (changes remain staged)", err))
		} else {
			commitID = result.SHA
			e.sink.Commit(ctx, exec.ID, step, result.SHA, exec.Staged.Paths())
		}
	}

	if err := e.store.MarkDone(ctx, exec.ID, commitID); err != nil {
		e.logger.Errorf("failed to mark execution %s done: %v", exec.ID, err)
	}
	e.sink.System(ctx, exec.ID, step, fmt.Sprintf("completed after %d steps: %s", step, summary))
	e.logger.Infof("execution %s done (commit=%q)", exec.ID, commitID)
}

// finishDeadEnd applies the configured policy when a step produced neither a
// tool call nor a completion signal.
func (e *Engine) finishDeadEnd(ctx context.Context, exec *types.Execution, step int) {
	if e.deadEnd == DeadEndFail {
		reason := "no tool call or completion signal"
		e.sink.Error(ctx, exec.ID, step, reason)
		e.markFailed(ctx, exec.ID, reason)
		return
	}

	e.sink.System(ctx, exec.ID, step, "no tool call or completion signal; treating as implicit completion")
	if err := e.store.MarkDone(ctx, exec.ID, ""); err != nil {
		e.logger.Errorf("failed to mark execution %s done: %v", exec.ID, err)
	}
}

func (e *Engine) markFailed(ctx context.Context, id, reason string) {
	if err := e.store.MarkFailed(ctx, id, reason); err != nil {
		e.logger.Errorf("failed to mark execution %s failed: %v", id, err)
	}
}
