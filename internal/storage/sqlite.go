package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps every resource in one SQLite table.
type SQLiteStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates the database at path. The special path
// ":memory:" keeps everything in memory.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// One connection: SQLite serializes writers, and an in-memory database
	// exists only on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Warn().Err(err).Msg("failed to enable WAL mode")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info().Str("path", path).Msg("resource database opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS resources (
			kind       TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      BLOB NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (kind, key)
		);
	`)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, kind Kind, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM resources WHERE kind = ? AND key = ?", string(kind), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", kind, key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, kind Kind, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resources (kind, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		string(kind), key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", kind, key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, kind Kind, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM resources WHERE kind = ? AND key = ?", string(kind), key)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", kind, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", kind, key, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, kind Kind, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM resources WHERE kind = ? AND key = ?", string(kind), key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check %s/%s: %w", kind, key, err)
	}
	return true, nil
}

func (s *SQLiteStore) Keys(ctx context.Context, kind Kind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM resources WHERE kind = ? ORDER BY key", string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", kind, err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
