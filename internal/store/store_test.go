package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-notify/migrations"
)

// openTestDB creates a migrated temporary database for testing.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.Source()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func implementations(t *testing.T) map[string]func() ConditionalStore {
	t.Helper()
	db := openTestDB(t)
	n := 0
	return map[string]func() ConditionalStore{
		"memory": func() ConditionalStore { return NewMemoryStore() },
		"sqlite": func() ConditionalStore {
			n++
			return NewSQLiteStore(db, "test-"+string(rune('a'+n)))
		},
	}
}

func TestStore_GetPutDelete(t *testing.T) {
	for name, newStore := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			ctx := context.Background()

			if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
			}

			if err := s.Put(ctx, "k", []byte("v1")); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if err := s.Put(ctx, "k", []byte("v2")); err != nil {
				t.Fatalf("Put() overwrite error = %v", err)
			}

			got, err := s.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if string(got) != "v2" {
				t.Errorf("Get() = %q, want %q", got, "v2")
			}

			if err := s.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
			}

			if err := s.Delete(ctx, "never-existed"); err != nil {
				t.Errorf("Delete(absent) error = %v, want nil", err)
			}
		})
	}
}

func TestStore_PutIfAbsent(t *testing.T) {
	for name, newStore := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			ctx := context.Background()

			ok, err := s.PutIfAbsent(ctx, "slot", []byte("first"))
			if err != nil || !ok {
				t.Fatalf("PutIfAbsent() = %v, %v; want true, nil", ok, err)
			}

			ok, err = s.PutIfAbsent(ctx, "slot", []byte("second"))
			if err != nil || ok {
				t.Fatalf("second PutIfAbsent() = %v, %v; want false, nil", ok, err)
			}

			got, err := s.Get(ctx, "slot")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if string(got) != "first" {
				t.Errorf("Get() = %q, want %q", got, "first")
			}
		})
	}
}

func TestStore_PutIfAbsentSingleWinner(t *testing.T) {
	for name, newStore := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			ctx := context.Background()

			const racers = 16
			var wg sync.WaitGroup
			var mu sync.Mutex
			wins := 0
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := s.PutIfAbsent(ctx, "slot", []byte{byte(i)})
					if err != nil {
						t.Errorf("PutIfAbsent() error = %v", err)
						return
					}
					if ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			if wins != 1 {
				t.Errorf("winners = %d, want 1", wins)
			}
		})
	}
}

func TestSQLiteStore_NamespacesAreIsolated(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := NewSQLiteStore(db, NamespaceCredentials)
	b := NewSQLiteStore(db, NamespaceEntities)

	if err := a.Put(ctx, "shared", []byte("a")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := b.Get(ctx, "shared"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() across namespaces error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_WrapsDriverErrors(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db, "closed")
	db.Close() //nolint:errcheck // Forcing failure

	_, err := s.Get(context.Background(), "k")
	if !errors.Is(err, ErrStorage) {
		t.Errorf("Get() on closed db error = %v, want ErrStorage", err)
	}
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	in := []byte("abc")
	if err := s.Put(ctx, "k", in); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	in[0] = 'z'

	out, _ := s.Get(ctx, "k") //nolint:errcheck // Checked by value
	if string(out) != "abc" {
		t.Errorf("stored value mutated through caller slice: %q", out)
	}
	out[0] = 'y'

	again, _ := s.Get(ctx, "k") //nolint:errcheck // Checked by value
	if string(again) != "abc" {
		t.Errorf("stored value mutated through returned slice: %q", again)
	}
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	type record struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}

	if err := PutJSON(ctx, s, "r", record{ID: "x", Count: 3}); err != nil {
		t.Fatalf("PutJSON() error = %v", err)
	}
	got, err := GetJSON[record](ctx, s, "r")
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if got.ID != "x" || got.Count != 3 {
		t.Errorf("GetJSON() = %+v", got)
	}

	ok, err := PutJSONIfAbsent(ctx, s, "r", record{ID: "y"})
	if err != nil || ok {
		t.Errorf("PutJSONIfAbsent() on existing = %v, %v; want false, nil", ok, err)
	}

	if err := s.Put(ctx, "bad", []byte("{not json")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := GetJSON[record](ctx, s, "bad"); !errors.Is(err, ErrStorage) {
		t.Errorf("GetJSON(bad) error = %v, want ErrStorage", err)
	}

	if _, err := GetJSON[record](ctx, s, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJSON(missing) error = %v, want ErrNotFound", err)
	}
}
