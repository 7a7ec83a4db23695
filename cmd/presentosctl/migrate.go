package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"presentos/internal/config"
	"presentos/migrations"
	"presentos/pkg/db"
	"presentos/pkg/logger"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.DB.Enabled {
				return fmt.Errorf("db.enabled is false, nothing to migrate")
			}
			log := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
			defer log.Sync()

			ctx := cmd.Context()
			pool, err := db.NewConnection(ctx, cfg.DB, log)
			if err != nil {
				return err
			}
			defer pool.Close()
			return db.Migrate(ctx, pool, migrations.FS, log)
		},
	}
}
