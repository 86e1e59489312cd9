package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	appErrors "fflux/internal/errors"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, WAL-friendly
)

const kvSchema = `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
`

// SQLite is a KV backed by a local SQLite file.
type SQLite struct {
	path string
	dsn  string

	once    sync.Once
	db      *sql.DB
	openErr error
}

// NewSQLite returns a store for the database at path. The file and its parent
// directory are created on first use.
func NewSQLite(path string) (*SQLite, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, appErrors.New(appErrors.CodeConfigurationError, "storage path is empty", nil)
	}
	return &SQLite{path: trimmed, dsn: buildSQLiteDSN(trimmed)}, nil
}

// buildSQLiteDSN creates a read-write WAL DSN for the given path.
func buildSQLiteDSN(dbPath string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(dbPath),
	}
	q := url.Values{}
	q.Set("mode", "rwc")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(3000)")
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *SQLite) open(ctx context.Context) (*sql.DB, error) {
	s.once.Do(func() {
		//nolint:gosec // G301: State directory needs standard permissions
		if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
			s.openErr = storageError("create state directory", err)
			return
		}
		db, err := sql.Open("sqlite", s.dsn)
		if err != nil {
			s.openErr = storageError("open state db", err)
			return
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			s.openErr = storageError("ping state db", err)
			return
		}
		if _, err := db.ExecContext(ctx, kvSchema); err != nil {
			_ = db.Close()
			s.openErr = storageError("create kv schema", err)
			return
		}
		s.db = db
	})
	return s.db, s.openErr
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	db, err := s.open(ctx)
	if err != nil {
		return "", false, err
	}
	var value string
	err = db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageError("read "+key, err)
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return storageError("write "+key, err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func storageError(action string, err error) error {
	return appErrors.New(appErrors.CodeStorage, fmt.Sprintf("%s: %v", action, err), err)
}
