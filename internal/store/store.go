package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when no record exists for the key.
	ErrNotFound = errors.New("record not found")

	// ErrStorage wraps failures of the underlying storage backend.
	ErrStorage = errors.New("storage failure")
)

// Store is a keyed record store.
//
// Delete of an absent key is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// ConditionalStore is a Store that can write a record only when the key is free.
type ConditionalStore interface {
	Store

	// PutIfAbsent stores value if key has no record and reports whether it did.
	PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
}

// GetJSON loads the record at key and decodes it into a new T.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var out T
	data, err := s.Get(ctx, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: decoding %s: %w", ErrStorage, key, err)
	}
	return out, nil
}

// PutJSON encodes v and stores it at key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}

// PutJSONIfAbsent encodes v and stores it at key unless a record already exists.
func PutJSONIfAbsent(ctx context.Context, s ConditionalStore, key string, v any) (bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.PutIfAbsent(ctx, key, data)
}
