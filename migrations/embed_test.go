package migrations_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-notify/migrations"
)

func TestSource_AppliesCleanly(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{
		Path:    filepath.Join(t.TempDir(), "notify.db"),
		WALMode: true,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx, migrations.Source()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	applied, pending, err := db.GetMigrationStatus(ctx, migrations.Source())
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) == 0 || len(pending) != 0 {
		t.Errorf("applied = %d, pending = %d; want all applied", len(applied), len(pending))
	}

	var n int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='kv_records'",
	).Scan(&n); err != nil || n != 1 {
		t.Errorf("kv_records table missing (n=%d, err=%v)", n, err)
	}

	// Every shipped migration is reversible.
	for range applied {
		if err := db.MigrateDown(ctx, migrations.Source()); err != nil {
			t.Fatalf("MigrateDown() error = %v", err)
		}
	}
}
