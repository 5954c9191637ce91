package types

import "time"

// LogType classifies a persisted log entry.
type LogType string

const (
	LogSystem     LogType = "system"
	LogThinking   LogType = "thinking"
	LogToolCall   LogType = "tool_call"
	LogToolResult LogType = "tool_result"
	LogMessage    LogType = "message"
	LogError      LogType = "error"
	LogCommit     LogType = "commit"
)

// LogEntry is an append-only record of one event during an execution.
// Entries are created by the step executor and controller and never mutated.
type LogEntry struct {
	ID          int64
	ExecutionID string
	Step        int
	Type        LogType
	Content     string
	Metadata    map[string]any
	CreatedAt   time.Time
}
