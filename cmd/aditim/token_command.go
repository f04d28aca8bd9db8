package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/formemu/aditim-monitor-sub000/internal/daemon"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for API viewers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			token, err := daemon.IssueToken(cfg.API.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			if ctx.jsonMode() {
				return writeJSON(cmd, map[string]string{"token": token, "subject": subject})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "viewer", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime (0 for no expiry)")
	return cmd
}
