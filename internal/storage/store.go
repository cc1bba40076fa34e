// Package storage defines the key/value persistence port used by the
// repository. Each key holds one JSON collection.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection keys. The names match the browser localStorage keys so exported
// data can be imported as-is.
const (
	KeyChildren   = "childminder_children"
	KeyAttendance = "childminder_attendance"
	KeyExpenses   = "childminder_expenses"
	KeyAbsences   = "childminder_absences"
)

// Store reads and writes whole JSON documents by key.
type Store interface {
	// Read returns the stored document and true, or nil and false when the key
	// has never been written.
	Read(ctx context.Context, key string) ([]byte, bool, error)

	// Write replaces the document stored under key.
	Write(ctx context.Context, key string, data []byte) error

	// Close releases any resources held by the store.
	Close() error
}

// ReadCollection decodes the JSON array stored under key. A missing key
// yields an empty, non-nil slice.
func ReadCollection[T any](ctx context.Context, s Store, key string) ([]T, error) {
	data, ok, err := s.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	out := []T{}
	if !ok || len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// WriteCollection encodes items as a JSON array and stores it under key.
func WriteCollection[T any](ctx context.Context, s Store, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Write(ctx, key, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
