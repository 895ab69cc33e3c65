package repository

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNewDatabaseMigratesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "quest.db")

	db, err := NewDatabase(path)
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	if db.SafeMode {
		t.Fatalf("unexpected safe mode: %s", db.MigrationError)
	}
	if db.SchemaVersion != latestSchemaVersion {
		t.Fatalf("schema_version=%d want %d", db.SchemaVersion, latestSchemaVersion)
	}
	if _, err := NewProgressRepository(db.DB).Write(context.Background(), "u1", "w", []byte(`{}`)); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	again, err := NewDatabase(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer again.Close()
	doc, err := NewProgressRepository(again.DB).Get(context.Background(), "u1")
	if err != nil || doc == nil || doc.Revision != 1 {
		t.Fatalf("doc=%+v err=%v", doc, err)
	}
}
