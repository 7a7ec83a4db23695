package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "presentosctl",
		Short: "Operator tooling for presentos",
		Long: `presentosctl mints API tokens for chat, voice and bot clients and applies the
database schema, and replays failed outbox events. It reads the same config directory as the server
(CONFIG_ENV, CONFIG_DIR and the usual env overrides).`,
		SilenceUsage: true,
	}
	root.AddCommand(tokenCmd(), migrateCmd(), outboxCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
