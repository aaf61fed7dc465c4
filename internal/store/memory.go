package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrInjected is returned by MemoryStore when a failure has been requested.
var ErrInjected = errors.New("injected store failure")

// MemoryStore is an in-memory Store for tests. Documents are kept as encoded
// JSON so every Load returns an independent copy.
type MemoryStore[T any] struct {
	mu        sync.Mutex
	lock      sync.Mutex
	raw       []byte
	saves     int
	FailLoads bool
	FailSaves bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{}
}

// Lock implements Locker.
func (m *MemoryStore[T]) Lock(ctx context.Context) (func(), error) {
	m.lock.Lock()
	return m.lock.Unlock, nil
}

// Load implements Store.
func (m *MemoryStore[T]) Load(ctx context.Context) (*Records[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailLoads {
		return nil, ErrInjected
	}
	records := NewRecords[T]()
	if len(m.raw) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(m.raw, records); err != nil {
		return nil, err
	}
	return records, nil
}

// Save implements Store.
func (m *MemoryStore[T]) Save(ctx context.Context, records *Records[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSaves {
		return ErrInjected
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	m.raw = data
	m.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (m *MemoryStore[T]) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Raw returns the last saved document.
func (m *MemoryStore[T]) Raw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.raw...)
}

// SetRaw replaces the stored document, for seeding legacy shapes.
func (m *MemoryStore[T]) SetRaw(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = append([]byte(nil), data...)
}
