package store

import (
	"context"
	"errors"
	"testing"
)

func TestRebind(t *testing.T) {
	got := rebind(DialectPostgres, `SELECT * FROM t WHERE a=? AND b='?' AND c=?`)
	want := `SELECT * FROM t WHERE a=$1 AND b='?' AND c=$2`
	if got != want {
		t.Fatalf("rebind: got %q want %q", got, want)
	}
	if rebind(DialectSQLite, "a=?") != "a=?" {
		t.Fatalf("sqlite queries must be left alone")
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := ApplyMigrations(ctx, db, nil); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	version, err := SchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if version < 1 {
		t.Fatalf("expected schema version >= 1, got %d", version)
	}
}

func TestSavepointRollsBackOnlyInnerWork(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	inc := newTestIncident(t, db)
	ref := inc.Ref()
	err := db.inTx(ctx, func(q querier) error {
		if _, err := q.exec(ctx, `UPDATE incidents SET title=? WHERE id=?`, "outer", ref.ID); err != nil {
			return err
		}
		inner := q.savepoint(ctx, "inner_work", func() error {
			if _, err := q.exec(ctx, `UPDATE incidents SET description=? WHERE id=?`, "inner", ref.ID); err != nil {
				return err
			}
			return errors.New("boom")
		})
		if inner == nil {
			t.Fatalf("expected savepoint error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	got, err := NewIncidentsStore(db).GetIncident(ctx, ref.ID)
	if err != nil || got == nil {
		t.Fatalf("get incident: %v", err)
	}
	if got.Title != "outer" {
		t.Fatalf("outer write lost: %q", got.Title)
	}
	if got.Description != "" {
		t.Fatalf("inner write survived savepoint rollback: %q", got.Description)
	}
}
