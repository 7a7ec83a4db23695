package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"presentos/internal/config"
	"presentos/pkg/db"
	"presentos/pkg/logger"
	"presentos/pkg/mq"
	"presentos/pkg/outbox"
)

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and replay outbox events",
	}
	cmd.AddCommand(outboxReplayCmd())
	return cmd
}

func outboxReplayCmd() *cobra.Command {
	var (
		id    int64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Republish failed outbox events",
		Long: `replay republishes events whose automatic retries are exhausted.
With --id only that event is replayed, whatever its status.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.DB.Enabled || !cfg.MQ.Enabled {
				return fmt.Errorf("outbox replay needs both db and mq enabled")
			}
			log := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
			defer log.Sync()

			ctx := cmd.Context()
			pool, err := db.NewConnection(ctx, cfg.DB, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			publisher, err := mq.NewPublisher(ctx, cfg.MQ.URL, "presentosctl", cfg.MQ.DialAttempts)
			if err != nil {
				return err
			}
			defer publisher.Close()

			svc := outbox.NewReplayService(outbox.NewRepository(pool), publisher, logger.Component(log, "replay"))
			if id > 0 {
				if err := svc.ReplayEvent(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "replayed event %d\n", id)
				return nil
			}
			n, err := svc.ReplayFailedEvents(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d events\n", n)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "replay a single event by id")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of failed events to replay")
	return cmd
}
