package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestDB_MigrateUpAndDown(t *testing.T) {
	ctx := context.Background()
	db, err := New(filepath.Join(t.TempDir(), "nested", "moviehound.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	version, err := db.Version(ctx)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}

	for _, table := range []string{"download_clients", "conversion_history"} {
		var name string
		err := db.Conn().QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if version, _ := db.Version(ctx); version != 1 {
		t.Errorf("version after down = %d, want 1", version)
	}
}

func TestDB_MigrateIsRepeatable(t *testing.T) {
	ctx := context.Background()
	db, err := New(filepath.Join(t.TempDir(), "moviehound.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := db.Migrate(ctx); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i+1, err)
		}
	}
}
