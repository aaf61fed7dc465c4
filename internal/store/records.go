// Package store persists the license and trial documents. A document is one
// JSON object whose keys are record ids; key order is preserved across a
// load/save cycle so on-disk diffs stay readable.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
)

// Records is an insertion-ordered map of record id to value.
type Records[T any] struct {
	keys   []string
	values map[string]T
}

// NewRecords returns an empty document.
func NewRecords[T any]() *Records[T] {
	return &Records[T]{values: make(map[string]T)}
}

// Len returns the number of records.
func (r *Records[T]) Len() int {
	return len(r.keys)
}

// Get returns the record stored under key.
func (r *Records[T]) Get(key string) (T, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key exists.
func (r *Records[T]) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Set inserts or replaces the record under key. New keys are appended.
func (r *Records[T]) Set(key string, v T) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Keys returns a copy of the keys in document order.
func (r *Records[T]) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// All iterates records in document order.
func (r *Records[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		for _, k := range r.keys {
			if !yield(k, r.values[k]) {
				return
			}
		}
	}
}

// Clone returns a shallow copy that can be iterated after the lock is released.
func (r *Records[T]) Clone() *Records[T] {
	out := &Records[T]{
		keys:   r.Keys(),
		values: make(map[string]T, len(r.values)),
	}
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// MarshalJSON implements json.Marshaler, writing keys in document order.
func (r *Records[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler. A duplicate key keeps its first
// position and its last value.
func (r *Records[T]) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("document must be a JSON object")
	}

	r.keys = nil
	r.values = make(map[string]T)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var v T
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("record %q: %w", key, err)
		}
		r.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
