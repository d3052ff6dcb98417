package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "warroom.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := ApplyMigrations(context.Background(), db, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestIncident(t *testing.T, db *DB) *Incident {
	t.Helper()
	inc := &Incident{Title: "Database outage"}
	if _, err := NewIncidentsStore(db).CreateIncident(context.Background(), inc, ""); err != nil {
		t.Fatalf("create incident: %v", err)
	}
	return inc
}
