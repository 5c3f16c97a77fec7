package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"payops/internal/db"
)

//go:embed sql/sqlite/*.sql sql/postgres/*.sql
var migrationsFS embed.FS

func source(d db.Dialect) (goose.Dialect, fs.FS, error) {
	switch d {
	case db.Postgres:
		sub, err := fs.Sub(migrationsFS, "sql/postgres")
		return goose.DialectPostgres, sub, err
	default:
		sub, err := fs.Sub(migrationsFS, "sql/sqlite")
		return goose.DialectSQLite3, sub, err
	}
}

func newProvider(conn *sql.DB, d db.Dialect) (*goose.Provider, error) {
	dialect, fsys, err := source(d)
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(dialect, conn, fsys)
}

// Migrate applies embedded migrations in order.
func Migrate(ctx context.Context, conn *sql.DB, d db.Dialect) error {
	provider, err := newProvider(conn, d)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	for _, res := range results {
		if res.Error != nil {
			return fmt.Errorf("migration %s: %w", res.Source.Path, res.Error)
		}
	}
	return nil
}

// Version returns the current schema version.
func Version(ctx context.Context, conn *sql.DB, d db.Dialect) (int64, error) {
	provider, err := newProvider(conn, d)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}
