package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voice-agent/internal/log"
	"github.com/teslashibe/go-voice-agent/pkg/store"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			driver := strings.ToLower(cfg.Store.Driver)
			switch driver {
			case store.DriverSQLite, store.DriverPostgres, store.DriverPgx:
			default:
				return fmt.Errorf("store driver %q has no migrations", cfg.Store.Driver)
			}

			ctx := cmd.Context()
			st, err := store.OpenSQL(ctx, driver, cfg.Store.DSN, log.L())
			if err != nil {
				return err
			}
			defer st.Close()

			applied, err := st.Migrate(ctx)
			if err != nil {
				return err
			}
			version, err := st.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s), schema version %d\n", applied, version)
			return nil
		},
	}
}
