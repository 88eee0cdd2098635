package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"allin1/orchestrator/pkg/types"
)

// SQLiteStore stores task graphs in a local SQLite database. Graphs are
// written as one JSON document per row; user id and status are lifted
// into columns for querying.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens (and migrates) the database at path, creating parent
// directories as needed. WAL mode is enabled for concurrent reads.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteStore{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS task_graphs (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			status     TEXT NOT NULL,
			data       TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create task_graphs table: %w", err)
	}
	_, err = s.conn.Exec(`CREATE INDEX IF NOT EXISTS idx_task_graphs_user ON task_graphs(user_id)`)
	if err != nil {
		return fmt.Errorf("create user index: %w", err)
	}
	return nil
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, g *types.TaskGraph) (string, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	data, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("marshal task graph: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO task_graphs (id, user_id, status, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, g.ID, g.UserID, string(g.Status), string(data), g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("insert task graph: %w", err)
	}
	return g.ID, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.TaskGraph, error) {
	var data string
	err := s.conn.QueryRowContext(ctx,
		`SELECT data FROM task_graphs WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query task graph: %w", err)
	}

	var g types.TaskGraph
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return nil, fmt.Errorf("unmarshal task graph %s: %w", id, err)
	}
	return &g, nil
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, g *types.TaskGraph) error {
	if g.ID == "" {
		return fmt.Errorf("update task graph: empty id")
	}
	g.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal task graph: %w", err)
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE task_graphs SET status = ?, data = ?, updated_at = ? WHERE id = ?
	`, string(g.Status), string(data), g.UpdatedAt, g.ID)
	if err != nil {
		return fmt.Errorf("update task graph: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}
