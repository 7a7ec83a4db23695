package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"presentos/internal/config"
	"presentos/pkg/auth"
)

func tokenCmd() *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint an HS256 bearer token for a client",
		Long: `Mint a bearer token signed with jwt.secret.

Roles:
  user   chat/voice client, can read notifications and experience
  bot    messaging bot, can only submit requests
  admin  same permissions as user`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch role {
			case auth.RoleUser, auth.RoleBot, auth.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			if ttl <= 0 {
				return fmt.Errorf("ttl must be positive")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := auth.GenerateToken(args[0], role, cfg.JWT.Secret, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", auth.RoleUser, "client role: user, bot or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}
