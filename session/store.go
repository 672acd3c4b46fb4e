// session/store.go
package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"deepchat/types"
)

// Store persists conversations to a local sqlite database. Save is a full
// replace of a session's messages, so re-saving the same turn is harmless.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
  id         TEXT PRIMARY KEY,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
  session_id   TEXT NOT NULL,
  idx          INTEGER NOT NULL,
  role         TEXT NOT NULL,
  content      TEXT,
  tool_calls   TEXT,
  tool_call_id TEXT,
  PRIMARY KEY (session_id, idx),
  FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);
`

// Open creates or opens the session database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure session database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate session database: %w", err)
	}
	return &Store{db: db}, nil
}

// Last returns the id of the most recently updated session, or "" if none.
func (s *Store) Last() (string, error) {
	var id string
	err := s.db.QueryRow("SELECT id FROM sessions ORDER BY updated_at DESC LIMIT 1").Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find last session: %w", err)
	}
	return id, nil
}

// Load returns a session's messages in order. A missing session loads as an
// empty conversation.
func (s *Store) Load(id string) ([]types.Message, error) {
	rows, err := s.db.Query(
		"SELECT role, content, tool_calls, tool_call_id FROM messages WHERE session_id = ? ORDER BY idx ASC", id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	defer rows.Close()

	var messages []types.Message
	for rows.Next() {
		var msg types.Message
		var content, toolCalls, toolCallID sql.NullString
		if err := rows.Scan(&msg.Role, &content, &toolCalls, &toolCallID); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Content = content.String
		msg.ToolCallID = toolCallID.String
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// timeFormat keeps fractional seconds fixed-width so timestamps sort
// lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Save replaces the session's stored messages with the given sequence.
func (s *Store) Save(id string, messages []types.Message) error {
	now := time.Now().UTC().Format(timeFormat)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?) "+
			"ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at", id, now, now); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear session messages: %w", err)
	}

	for i, msg := range messages {
		var toolCalls interface{}
		if len(msg.ToolCalls) > 0 {
			data, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("failed to encode tool calls: %w", err)
			}
			toolCalls = string(data)
		}
		if _, err := tx.Exec(
			"INSERT INTO messages (session_id, idx, role, content, tool_calls, tool_call_id) VALUES (?, ?, ?, ?, ?, ?)",
			id, i, msg.Role, msg.Content, toolCalls, msg.ToolCallID); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
