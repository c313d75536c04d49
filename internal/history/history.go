// Package history persists completed chat exchanges to a local SQLite
// database so transcripts survive restarts.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Turn is one completed exchange: the user prompt, the assistant reply
// and the throughput recorded while it streamed.
type Turn struct {
	ID              int64
	SessionID       string
	Model           string
	Prompt          string
	Reply           string
	Tokens          int
	TokensPerSecond float64
	ElapsedSeconds  float64
	CreatedAt       time.Time
}

// Store wraps the transcript database.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the database at path, creating file and parent
// directories when missing.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		model TEXT NOT NULL,
		prompt TEXT NOT NULL,
		reply TEXT NOT NULL,
		tokens INTEGER DEFAULT 0,
		tokens_per_second REAL DEFAULT 0,
		elapsed_seconds REAL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
	CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTurn appends one completed exchange.
func (s *Store) SaveTurn(t Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO turns (session_id, model, prompt, reply, tokens, tokens_per_second, elapsed_seconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.Model, t.Prompt, t.Reply, t.Tokens, t.TokensPerSecond, t.ElapsedSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

// Recent returns the latest turns, newest first.
func (s *Store) Recent(limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, session_id, model, prompt, reply, tokens, tokens_per_second, elapsed_seconds, created_at
		 FROM turns ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Model, &t.Prompt, &t.Reply,
			&t.Tokens, &t.TokensPerSecond, &t.ElapsedSeconds, &t.CreatedAt); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
