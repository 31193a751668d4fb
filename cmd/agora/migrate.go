package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ent0n29/agora/internal/config"
	"github.com/ent0n29/agora/internal/session"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply session store migrations",
	Long: `Apply pending schema migrations to the configured postgres or sqlite store.

The store is selected exactly as for serve (STORE_DRIVER, DATABASE_URL, SQLITE_PATH).`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := session.NewStore(cmd.Context(), session.Config{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	m, ok := store.(session.Migrator)
	if !ok {
		return fmt.Errorf("store driver %q has no schema to migrate", store.Driver())
	}
	applied, err := m.Migrate(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(applied) == 0 {
		fmt.Fprintf(out, "%s: schema is up to date\n", store.Driver())
		return nil
	}
	for _, v := range applied {
		fmt.Fprintf(out, "%s: applied migration %05d\n", store.Driver(), v)
	}
	return nil
}
