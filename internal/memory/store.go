// Package memory provides the durable prompt memory: a key-value store
// mapping a task type to the system prompt that has worked best for it.
// Writes are last-write-wins per key; there is no versioning and no
// semantic retrieval.
package memory

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Entry is a single stored prompt.
type Entry struct {
	TaskType     string
	SystemPrompt string
	LastUpdated  time.Time
}

// Store manages the SQLite database backing prompt memory. A missing
// database file is not an error; it is created empty on open.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if necessary) the prompt database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// busy_timeout first so the remaining pragmas wait on locks rather
	// than failing when another process touches the same file.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// execWithRetry executes a statement with exponential backoff on
// "database is locked" errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Put overwrites the prompt for a task type. The upsert is a single
// statement, so each update is all-or-nothing.
func (s *Store) Put(ctx context.Context, taskType, systemPrompt string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompts (task_type, system_prompt, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(task_type) DO UPDATE SET
			system_prompt = excluded.system_prompt,
			last_updated = excluded.last_updated`,
		taskType, systemPrompt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put prompt for %q: %w", taskType, err)
	}
	return nil
}

// Get returns the entry for a task type. The boolean is false when no
// prompt is stored for that type.
func (s *Store) Get(ctx context.Context, taskType string) (Entry, bool, error) {
	var entry Entry
	row := s.db.QueryRowContext(ctx, `
		SELECT task_type, system_prompt, last_updated
		FROM prompts WHERE task_type = ?`, taskType)
	if err := row.Scan(&entry.TaskType, &entry.SystemPrompt, &entry.LastUpdated); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("get prompt for %q: %w", taskType, err)
	}
	return entry, true, nil
}

// GetPrompt returns the stored system prompt for a task type, or "" when
// none exists.
func (s *Store) GetPrompt(ctx context.Context, taskType string) (string, error) {
	entry, ok, err := s.Get(ctx, taskType)
	if err != nil || !ok {
		return "", err
	}
	return entry.SystemPrompt, nil
}

// Delete removes the entry for a task type. Deleting a missing entry is
// not an error.
func (s *Store) Delete(ctx context.Context, taskType string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE task_type = ?`, taskType); err != nil {
		return fmt.Errorf("delete prompt for %q: %w", taskType, err)
	}
	return nil
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM prompts`); err != nil {
		return fmt.Errorf("clear prompts: %w", err)
	}
	return nil
}

// List returns all entries ordered by task type.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_type, system_prompt, last_updated
		FROM prompts ORDER BY task_type`)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.TaskType, &entry.SystemPrompt, &entry.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan prompt row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MatchTaskType finds a stored task type whose name overlaps the given
// description, for classifying free-text user input. Returns "" when no
// stored type matches; the caller decides the fallback category.
func (s *Store) MatchTaskType(ctx context.Context, description string) (string, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return "", err
	}

	descLower := strings.ToLower(description)
	for _, entry := range entries {
		typeLower := strings.ToLower(entry.TaskType)
		if strings.Contains(descLower, typeLower) || strings.Contains(typeLower, descLower) {
			return entry.TaskType, nil
		}
		for _, word := range strings.FieldsFunc(typeLower, func(r rune) bool {
			return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
		}) {
			if len(word) > 2 && strings.Contains(descLower, word) {
				return entry.TaskType, nil
			}
		}
	}
	return "", nil
}
