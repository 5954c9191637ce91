package engine

import (
	"context"

	"github.com/entrhq/crew/pkg/engine/store"
	"github.com/entrhq/crew/pkg/logging"
	"github.com/entrhq/crew/pkg/types"
)

// logContentCap bounds stored log entry content. Tool results and narration
// beyond the cap are truncated; the full payload still reaches the
// conversation (subject to its own token budget).
const logContentCap = 4000

// logSink is the append-only log writer for execution activity. A failed
// append never fails a step; it is reported to the process log instead.
type logSink struct {
	store  store.Store
	logger *logging.Logger
}

func newLogSink(st store.Store, logger *logging.Logger) *logSink {
	return &logSink{store: st, logger: logger}
}

func (s *logSink) write(ctx context.Context, executionID string, step int, typ types.LogType, content string, metadata map[string]any) {
	if len(content) > logContentCap {
		content = content[:logContentCap] + "... [truncated]"
	}

	entry := &types.LogEntry{
		ExecutionID: executionID,
		Step:        step,
		Type:        typ,
		Content:     content,
		Metadata:    metadata,
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		s.logger.Errorf("failed to append %s log for execution %s: %v", typ, executionID, err)
	}
}

func (s *logSink) System(ctx context.Context, id string, step int, content string) {
	s.write(ctx, id, step, types.LogSystem, content, nil)
}

func (s *logSink) Message(ctx context.Context, id string, step int, content string) {
	s.write(ctx, id, step, types.LogMessage, content, nil)
}

func (s *logSink) ToolCall(ctx context.Context, id string, step int, name string, input string) {
	s.write(ctx, id, step, types.LogToolCall, name, map[string]any{"input": input})
}

func (s *logSink) ToolResult(ctx context.Context, id string, step int, result types.ToolResultBlock) {
	s.write(ctx, id, step, types.LogToolResult, result.Content, map[string]any{
		"tool":     result.Name,
		"is_error": result.IsError,
	})
}

func (s *logSink) Error(ctx context.Context, id string, step int, content string) {
	s.write(ctx, id, step, types.LogError, content, nil)
}

func (s *logSink) Commit(ctx context.Context, id string, step int, sha string, files []string) {
	s.write(ctx, id, step, types.LogCommit, "committed "+sha, map[string]any{
		"commit_id": sha,
		"files":     files,
	})
}
