package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apperrors "licsrv/internal/errors"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteDB holds every document of a deployment in one database file, one row
// per document.
type SQLiteDB struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.NewPersistenceError("mkdir", filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.NewPersistenceError("open", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, apperrors.NewPersistenceError("open", path, fmt.Errorf("apply pragma %q: %w", pragma, execErr))
		}
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS documents (
            name TEXT PRIMARY KEY,
            body TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`); err != nil {
		_ = db.Close()
		return nil, apperrors.NewPersistenceError("migrate", path, err)
	}

	return &SQLiteDB{db: db, path: path}, nil
}

// Path returns the database file location.
func (d *SQLiteDB) Path() string {
	return d.path
}

// Checkpoint folds the WAL into the main database file so a file-level copy is
// complete.
func (d *SQLiteDB) Checkpoint(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return apperrors.NewPersistenceError("checkpoint", d.path, err)
	}
	return nil
}

// Ping verifies the connection.
func (d *SQLiteDB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (d *SQLiteDB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// SQLiteStore is a Store for one named document inside a SQLiteDB.
type SQLiteStore[T any] struct {
	db     *SQLiteDB
	name   string
	lock   *processLock
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore returns the store for document name.
func NewSQLiteStore[T any](db *SQLiteDB, name string, logger *slog.Logger) *SQLiteStore[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore[T]{
		db:     db,
		name:   name,
		lock:   newProcessLock(db.path + "." + name + ".lock"),
		logger: logger.With(slog.String("component", "sqlite_store"), slog.String("document", name)),
		now:    time.Now,
	}
}

// Lock implements Locker.
func (s *SQLiteStore[T]) Lock(ctx context.Context) (func(), error) {
	return s.lock.Lock(ctx)
}

// Load implements Store.
func (s *SQLiteStore[T]) Load(ctx context.Context) (*Records[T], error) {
	var body string
	err := retryOnBusy(ctx, func() error {
		return s.db.db.QueryRowContext(ctx, "SELECT body FROM documents WHERE name = ?", s.name).Scan(&body)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return NewRecords[T](), nil
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("select", s.db.path, err)
	}

	records := NewRecords[T]()
	if strings.TrimSpace(body) == "" {
		return records, nil
	}
	if err := json.Unmarshal([]byte(body), records); err != nil {
		s.logger.WarnContext(ctx, "document is corrupt, treating as empty",
			slog.String("error", err.Error()),
			slog.Int("size_bytes", len(body)),
		)
		s.quarantine(ctx, body)
		return NewRecords[T](), nil
	}
	return records, nil
}

// quarantine copies an undecodable body to row <name>.corrupt-<unix> so the
// next Save does not destroy it.
func (s *SQLiteStore[T]) quarantine(ctx context.Context, body string) {
	now := s.now().UTC()
	name := fmt.Sprintf("%s.corrupt-%d", s.name, now.Unix())
	err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO documents (name, body, updated_at) VALUES (?, ?, ?)`,
			name, body, now.Format(time.RFC3339Nano))
		return execErr
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to quarantine corrupt document", slog.String("error", err.Error()))
		return
	}
	s.logger.WarnContext(ctx, "corrupt document quarantined", slog.String("row", name))
}

// Save implements Store. The row is replaced in a single statement.
func (s *SQLiteStore[T]) Save(ctx context.Context, records *Records[T]) error {
	data, err := json.Marshal(records)
	if err != nil {
		return apperrors.NewPersistenceError("encode", s.name, err)
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	err = retryOnBusy(ctx, func() error {
		_, execErr := s.db.db.ExecContext(ctx,
			`INSERT INTO documents (name, body, updated_at) VALUES (?, ?, ?)
             ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
			s.name, string(data), timestamp)
		return execErr
	})
	if err != nil {
		return apperrors.NewPersistenceError("upsert", s.db.path, err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
