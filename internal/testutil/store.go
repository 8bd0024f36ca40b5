package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/HerbHall/netwatch/internal/store"
	"github.com/HerbHall/netwatch/pkg/plugin"
)

// NewStore opens a throwaway file-backed SQLite database under t.TempDir and
// closes it at cleanup.
func NewStore(t testing.TB) *store.SQLiteStore {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "netwatch-test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewMigratedStore returns a NewStore with the owner's migrations applied.
func NewMigratedStore(t testing.TB, owner string, migrations []plugin.Migration) *store.SQLiteStore {
	t.Helper()
	db := NewStore(t)
	if err := db.Migrate(context.Background(), owner, migrations); err != nil {
		t.Fatalf("migrate %s: %v", owner, err)
	}
	return db
}
