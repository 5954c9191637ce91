package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/entrhq/crew/pkg/types"
	_ "modernc.org/sqlite"
)

// SQLite implements Store on a local sqlite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at dbPath and applies the schema.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Serialized access keeps the per-step write atomic without busy retries.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		task_title TEXT NOT NULL DEFAULT '',
		agent_name TEXT NOT NULL,
		status TEXT NOT NULL,
		current_step INTEGER NOT NULL DEFAULT 0,
		max_steps INTEGER NOT NULL,
		conversation TEXT NOT NULL DEFAULT '',
		staged_changes TEXT NOT NULL DEFAULT '',
		tokens_used INTEGER NOT NULL DEFAULT 0,
		files_changed TEXT NOT NULL DEFAULT '[]',
		commit_id TEXT,
		error TEXT,
		model TEXT NOT NULL DEFAULT '',
		repo_owner TEXT NOT NULL DEFAULT '',
		repo_name TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS log_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		execution_id TEXT NOT NULL REFERENCES executions(id),
		step INTEGER NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
	CREATE INDEX IF NOT EXISTS idx_executions_task ON executions(task_id);
	CREATE INDEX IF NOT EXISTS idx_log_entries_execution ON log_entries(execution_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const executionColumns = `id, task_id, task_title, agent_name, status, current_step, max_steps,
	conversation, staged_changes, tokens_used, files_changed, commit_id, error,
	model, repo_owner, repo_name, branch, started_at, completed_at`

func (s *SQLite) CreateExecution(ctx context.Context, exec *types.Execution) error {
	conversation, staged, files, err := encodeState(exec)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM executions WHERE task_id = ? AND status IN (?, ?)`,
		exec.TaskID, types.StatusRunning, types.StatusPaused,
	).Scan(&active)
	if err != nil {
		return err
	}
	if active > 0 {
		return fmt.Errorf("%w: task %s", ErrTaskBusy, exec.TaskID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO executions (`+executionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.TaskID, exec.TaskTitle, exec.AgentName, exec.Status, exec.CurrentStep,
		exec.MaxSteps, conversation, staged, exec.TokensUsed, files,
		nullable(exec.CommitID), nullable(exec.Error), exec.Model,
		exec.RepoOwner, exec.RepoName, exec.Branch, exec.StartedAt, exec.CompletedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) GetExecution(ctx context.Context, id string) (*types.Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)

	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return exec, err
}

func (s *SQLite) UpdateExecutionState(ctx context.Context, exec *types.Execution) error {
	conversation, staged, files, err := encodeState(exec)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE executions
		 SET conversation = ?, staged_changes = ?, current_step = ?, tokens_used = ?, files_changed = ?
		 WHERE id = ? AND status = ?`,
		conversation, staged, exec.CurrentStep, exec.TokensUsed, files,
		exec.ID, types.StatusRunning,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the id is unknown or the execution already reached a
		// terminal state; a terminal status is never clobbered.
		if _, err := s.GetExecution(ctx, exec.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) MarkDone(ctx context.Context, id, commitID string) error {
	return s.transition(ctx, id, types.StatusDone, nullable(commitID), nil)
}

func (s *SQLite) MarkFailed(ctx context.Context, id, reason string) error {
	return s.transition(ctx, id, types.StatusFailed, nil, nullable(reason))
}

func (s *SQLite) MarkStopped(ctx context.Context, id string) error {
	return s.transition(ctx, id, types.StatusStopped, nil, nil)
}

// transition is the single running → terminal path. The WHERE clause is the
// terminal-state guard: an execution that already left running is untouched.
func (s *SQLite) transition(ctx context.Context, id string, to types.ExecutionStatus, commitID, reason *string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE executions
		 SET status = ?, commit_id = COALESCE(?, commit_id), error = COALESCE(?, error), completed_at = ?
		 WHERE id = ? AND status = ?`,
		to, commitID, reason, time.Now().UTC(), id, types.StatusRunning,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := s.GetExecution(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrNotRunning, id)
	}
	return nil
}

func (s *SQLite) AppendLog(ctx context.Context, entry *types.LogEntry) error {
	var metadata *string
	if entry.Metadata != nil {
		data, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode log metadata: %w", err)
		}
		str := string(data)
		metadata = &str
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO log_entries (execution_id, step, type, content, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ExecutionID, entry.Step, entry.Type, entry.Content, metadata, createdAt,
	)
	if err != nil {
		return err
	}

	entry.ID, _ = result.LastInsertId()
	entry.CreatedAt = createdAt
	return nil
}

func (s *SQLite) ListLogs(ctx context.Context, executionID string) ([]*types.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, step, type, content, metadata, created_at
		 FROM log_entries WHERE execution_id = ? ORDER BY id`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*types.LogEntry
	for rows.Next() {
		var entry types.LogEntry
		var metadata sql.NullString

		if err := rows.Scan(&entry.ID, &entry.ExecutionID, &entry.Step,
			&entry.Type, &entry.Content, &metadata, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode log metadata: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func (s *SQLite) ListExecutions(ctx context.Context, limit int) ([]*types.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM executions ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExecutions(rows)
}

func (s *SQLite) ListRunning(ctx context.Context) ([]*types.Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE status = ? ORDER BY started_at`, types.StatusRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExecutions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*types.Execution, error) {
	var exec types.Execution
	var conversation, staged, files string
	var commitID, errMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&exec.ID, &exec.TaskID, &exec.TaskTitle, &exec.AgentName, &exec.Status, &exec.CurrentStep,
		&exec.MaxSteps, &conversation, &staged, &exec.TokensUsed, &files,
		&commitID, &errMsg, &exec.Model, &exec.RepoOwner, &exec.RepoName,
		&exec.Branch, &exec.StartedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if exec.Conversation, err = types.UnmarshalConversation([]byte(conversation)); err != nil {
		return nil, fmt.Errorf("failed to decode conversation for %s: %w", exec.ID, err)
	}
	if exec.Staged, err = types.UnmarshalStagedChanges([]byte(staged)); err != nil {
		return nil, fmt.Errorf("failed to decode staged changes for %s: %w", exec.ID, err)
	}
	if files != "" {
		if err := json.Unmarshal([]byte(files), &exec.FilesChanged); err != nil {
			return nil, fmt.Errorf("failed to decode files changed for %s: %w", exec.ID, err)
		}
	}
	if commitID.Valid {
		exec.CommitID = commitID.String
	}
	if errMsg.Valid {
		exec.Error = errMsg.String
	}
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.Time
	}
	return &exec, nil
}

func scanExecutions(rows *sql.Rows) ([]*types.Execution, error) {
	var execs []*types.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func encodeState(exec *types.Execution) (conversation, staged, files string, err error) {
	conversationBytes, err := types.MarshalConversation(exec.Conversation)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode conversation: %w", err)
	}
	stagedBytes, err := types.MarshalStagedChanges(exec.Staged)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode staged changes: %w", err)
	}

	changed := exec.FilesChanged
	if changed == nil {
		changed = []string{}
	}
	filesBytes, err := json.Marshal(changed)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode files changed: %w", err)
	}
	return string(conversationBytes), string(stagedBytes), string(filesBytes), nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
