// Package dbtest opens throwaway mirror stores for tests.
package dbtest

import (
	"testing"

	"github.com/cockroachdb/pebble/vfs"

	"trust-fund-service/database"
)

// NewPebble returns an in-memory pebble store closed at test cleanup.
func NewPebble(t testing.TB) database.Database {
	t.Helper()
	db, err := database.NewPebbleDatabase(&database.PebbleConfig{DataDir: "/mirror", FS: vfs.NewMem()})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// NewSQLite returns an in-memory sqlite store closed at test cleanup.
func NewSQLite(t testing.TB) database.Database {
	t.Helper()
	db, err := database.NewSQLDatabase(database.DBTypeSQLite, &database.SQLConfig{DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
