package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	apperrors "licsrv/internal/errors"
)

const lockRetryDelay = 25 * time.Millisecond

// processLock serializes writers inside this process with a mutex and across
// processes (the server and licensectl) with an advisory file lock.
type processLock struct {
	mu   sync.Mutex
	file *flock.Flock
	path string
}

func newProcessLock(path string) *processLock {
	return &processLock{file: flock.New(path), path: path}
}

// Lock implements Locker.
func (l *processLock) Lock(ctx context.Context) (func(), error) {
	l.mu.Lock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		l.mu.Unlock()
		return nil, apperrors.NewPersistenceError("lock", l.path, err)
	}

	locked, err := l.file.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		l.mu.Unlock()
		if err == nil {
			err = fmt.Errorf("lock not acquired")
		}
		return nil, apperrors.NewPersistenceError("lock", l.path, err)
	}

	return func() {
		_ = l.file.Unlock()
		l.mu.Unlock()
	}, nil
}
