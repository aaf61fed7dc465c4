package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	apperrors "licsrv/internal/errors"
)

// FileStore keeps a document in a single pretty-printed JSON file.
type FileStore[T any] struct {
	path    string
	lock    *processLock
	logger  *slog.Logger
	corrupt atomic.Bool
	now     func() time.Time
}

// NewFileStore returns a store backed by path. The file and its directory are
// created on the first Save.
func NewFileStore[T any](path string, logger *slog.Logger) *FileStore[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore[T]{
		path:   path,
		lock:   newProcessLock(path + ".lock"),
		logger: logger.With(slog.String("component", "file_store"), slog.String("path", path)),
		now:    time.Now,
	}
}

// Path returns the document location.
func (s *FileStore[T]) Path() string {
	return s.path
}

// Lock implements Locker.
func (s *FileStore[T]) Lock(ctx context.Context) (func(), error) {
	return s.lock.Lock(ctx)
}

// Load reads the document. A missing or empty file is an empty document. A
// file that does not parse is also read as empty and set aside on the next Save.
func (s *FileStore[T]) Load(ctx context.Context) (*Records[T], error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewRecords[T](), nil
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("read", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return NewRecords[T](), nil
	}

	records := NewRecords[T]()
	if err := json.Unmarshal(data, records); err != nil {
		s.corrupt.Store(true)
		s.logger.WarnContext(ctx, "document is corrupt, treating as empty",
			slog.String("error", err.Error()),
			slog.Int("size_bytes", len(data)),
		)
		return NewRecords[T](), nil
	}
	s.corrupt.Store(false)
	return records, nil
}

// Save writes the document through a temporary file in the same directory,
// fsyncs it and renames it over the target.
func (s *FileStore[T]) Save(ctx context.Context, records *Records[T]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return apperrors.NewPersistenceError("encode", s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.NewPersistenceError("mkdir", dir, err)
	}

	if s.corrupt.Load() {
		s.quarantine(ctx)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return apperrors.NewPersistenceError("create", dir, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return apperrors.NewPersistenceError("write", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return apperrors.NewPersistenceError("sync", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.NewPersistenceError("close", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return apperrors.NewPersistenceError("chmod", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return apperrors.NewPersistenceError("rename", s.path, err)
	}
	committed = true

	s.logger.DebugContext(ctx, "document saved",
		slog.Int("records", records.Len()),
		slog.Int("size_bytes", len(data)),
	)
	return nil
}

// quarantine moves an unparseable document aside so it is not lost.
func (s *FileStore[T]) quarantine(ctx context.Context) {
	target := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	if err := os.Rename(s.path, target); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.ErrorContext(ctx, "failed to quarantine corrupt document",
			slog.String("error", err.Error()),
		)
		return
	}
	s.corrupt.Store(false)
	s.logger.WarnContext(ctx, "corrupt document quarantined", slog.String("quarantine_path", target))
}
