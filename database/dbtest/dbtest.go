// Package dbtest opens throwaway in-memory databases for repository tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"crypto-signal-engine/database"

	"gorm.io/driver/sqlite"
)

var seq atomic.Int64

// New returns a migrated in-memory SQLite database closed at test cleanup
func New(t *testing.T) *database.Database {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, seq.Add(1))

	db, err := database.Open(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// A single connection serializes writers so shared-cache table locks never surface
	if sqlDB, err := db.DB().DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}
