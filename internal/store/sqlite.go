package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/database"
)

// Namespaces used by the service.
const (
	NamespaceCredentials   = "credentials"
	NamespaceSubscriptions = "subscriptions"
	NamespaceEntities      = "entities"
)

// SQLiteStore is a Store backed by one namespace of the kv_records table.
type SQLiteStore struct {
	db        *database.DB
	namespace string
}

// NewSQLiteStore returns a store over namespace. The kv_records table must
// already exist (see migrations/).
func NewSQLiteStore(db *database.DB, namespace string) *SQLiteStore {
	return &SQLiteStore{db: db, namespace: namespace}
}

func (s *SQLiteStore) wrap(op, key string, err error) error {
	return fmt.Errorf("%w: sqlite %s %s %s: %w", ErrStorage, s.namespace, op, key, err)
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv_records WHERE namespace = ? AND key = ?",
		s.namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.wrap("get", key, err)
	}
	return value, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_records (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.namespace, key, value, now(),
	)
	if err != nil {
		return s.wrap("put", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM kv_records WHERE namespace = ? AND key = ?",
		s.namespace, key,
	)
	if err != nil {
		return s.wrap("delete", key, err)
	}
	return nil
}

// PutIfAbsent implements ConditionalStore.
func (s *SQLiteStore) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_records (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO NOTHING`,
		s.namespace, key, value, now(),
	)
	if err != nil {
		return false, s.wrap("put-if-absent", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.wrap("put-if-absent", key, err)
	}
	return n == 1, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
