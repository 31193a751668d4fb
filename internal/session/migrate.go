package session

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

func migrationsFor(dialect goose.Dialect) (fs.FS, error) {
	switch dialect {
	case goose.DialectPostgres:
		return fs.Sub(migrations, "migrations/postgres")
	case goose.DialectSQLite3:
		return fs.Sub(migrations, "migrations/sqlite")
	default:
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
}

// Migrate applies pending schema migrations and returns the versions applied.
func Migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect) ([]int64, error) {
	fsys, err := migrationsFor(dialect)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	applied := make([]int64, 0, len(results))
	for _, r := range results {
		if r.Source != nil {
			applied = append(applied, r.Source.Version)
		}
	}
	return applied, nil
}
