package store

import (
	"context"
)

// Store loads and saves a whole document. Implementations must make Save
// atomic: a reader sees either the previous document or the new one.
type Store[T any] interface {
	Load(ctx context.Context) (*Records[T], error)
	Save(ctx context.Context, records *Records[T]) error
}

// Locker is implemented by stores that can serialize read-modify-write cycles
// across goroutines and processes. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context) (func(), error)
}

// Lock acquires s's lock when it has one. Stores without a lock return a
// no-op release.
func Lock(ctx context.Context, s any) (func(), error) {
	if l, ok := s.(Locker); ok {
		return l.Lock(ctx)
	}
	return func() {}, nil
}
