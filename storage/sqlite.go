// Package storage provides SQLite message storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema details encapsulated; messages are stored as JSON payloads
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ElectronicaGitHub/agented-io/model"
)

// SqliteStore implements MessageStore using SQLite.
// Histories survive restarts of the host process.
type SqliteStore struct {
	db     *sql.DB
	window int
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string, window int) (*SqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSqliteStore(db, window)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory(window int) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every pooled connection would otherwise see its own empty database.
	db.SetMaxOpenConns(1)
	return newSqliteStore(db, window)
}

func newSqliteStore(db *sql.DB, window int) (*SqliteStore, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	store := &SqliteStore{db: db, window: window}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agent_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			parent TEXT NOT NULL,
			child TEXT NOT NULL,
			message_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			sender_role TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_agent_messages_pair
		ON agent_messages(parent, child, id);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Append inserts messages and trims the pair back to the window.
func (s *SqliteStore) Append(ctx context.Context, parent, child string, msgs ...model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO agent_messages
			(parent, child, message_id, sender, sender_role, type, text, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, msg := range msgs {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
		_, err = stmt.ExecContext(ctx, parent, child, msg.ID, msg.Sender, string(msg.SenderRole),
			string(msg.Type), msg.Text, msg.CreatedAt.UnixMilli(), string(payload))
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM agent_messages
		WHERE parent = ? AND child = ? AND id NOT IN (
			SELECT id FROM agent_messages
			WHERE parent = ? AND child = ?
			ORDER BY id DESC LIMIT ?
		)`, parent, child, parent, child, s.window)
	if err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Read returns the pair's history, oldest first.
// Returns empty slice if the pair has no history.
func (s *SqliteStore) Read(ctx context.Context, parent, child string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM agent_messages WHERE parent = ? AND child = ? ORDER BY id ASC",
		parent, child)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []model.Message{} // Start with empty slice, not nil
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		var msg model.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// Clear deletes the pair's history.
func (s *SqliteStore) Clear(ctx context.Context, parent, child string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM agent_messages WHERE parent = ? AND child = ?",
		parent, child)
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
