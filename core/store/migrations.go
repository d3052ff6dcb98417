package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"warroom/core/utils"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// ApplyMigrations brings the schema up to date for the database dialect.
func ApplyMigrations(ctx context.Context, db *DB, logger *utils.Logger) error {
	provider, err := newMigrationProvider(db)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		if r.Source != nil {
			logger.Printf("migration applied: %s (%s)", r.Source.Path, r.Duration)
		}
	}
	return nil
}

// SchemaVersion reports the highest applied migration version.
func SchemaVersion(ctx context.Context, db *DB) (int64, error) {
	provider, err := newMigrationProvider(db)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}

func newMigrationProvider(db *DB) (*goose.Provider, error) {
	dialect := goose.DialectSQLite3
	dir := "migrations/sqlite"
	if db.Dialect() == DialectPostgres {
		dialect = goose.DialectPostgres
		dir = "migrations/postgres"
	}
	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(dialect, db.DB, sub)
	if err != nil {
		return nil, fmt.Errorf("migration provider: %w", err)
	}
	return provider, nil
}
