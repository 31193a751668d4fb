package session

import (
	"context"
	"fmt"
	"strings"
)

// Config selects and configures a Store backend.
type Config struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
	AutoMigrate bool
}

// NewStore builds the configured backend. Driver "auto" picks postgres when a database
// URL is set, sqlite when a path is set, and memory otherwise.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "auto" {
		switch {
		case strings.TrimSpace(cfg.DatabaseURL) != "":
			driver = "postgres"
		case strings.TrimSpace(cfg.SQLitePath) != "":
			driver = "sqlite"
		default:
			driver = "memory"
		}
	}

	switch driver {
	case "memory":
		return NewInMemoryStore(), nil
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for postgres store")
		}
		return NewPostgresStore(ctx, cfg.DatabaseURL, cfg.AutoMigrate)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.SQLitePath, cfg.AutoMigrate)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
