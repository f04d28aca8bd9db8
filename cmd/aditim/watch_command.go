package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/formemu/aditim-monitor-sub000/internal/broadcast"
	"github.com/formemu/aditim-monitor-sub000/internal/client"
	"github.com/formemu/aditim-monitor-sub000/internal/config"
	"github.com/formemu/aditim-monitor-sub000/internal/logging"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var baseURL string
	var token string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream change notifications from the daemon API",
		Long: "Connect to the daemon's WebSocket feed and print one line per change.\n" +
			"The connection is re-established with backoff and the queue is\n" +
			"refetched after every (re)connect.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			target := strings.TrimSpace(baseURL)
			if target == "" {
				target = apiBaseURL(cfg)
			}
			if !cmd.Flags().Changed("token") {
				token = cfg.API.Token
			}
			c, err := client.New(target, token, client.WithLogger(logging.NewNop()))
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			jsonMode := ctx.jsonMode()
			onMessage := func(msg broadcast.Message) {
				if jsonMode {
					data, err := json.Marshal(msg)
					if err == nil {
						fmt.Fprintln(out, string(data))
					}
					return
				}
				fmt.Fprintln(out, formatMessage(msg))
			}
			onReconnect := func(rctx context.Context) error {
				queue, err := c.ListQueue(rctx)
				if err != nil {
					return err
				}
				if !jsonMode {
					fmt.Fprintf(out, "Connected to %s, %d task(s) in queue\n", target, len(queue))
				}
				return nil
			}
			return c.Watch(runCtx, onMessage, onReconnect)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "Daemon API base URL (defaults to the configured bind address)")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token (defaults to the configured api token)")
	return cmd
}

// apiBaseURL turns the configured bind address into a URL a local client can
// reach.
func apiBaseURL(cfg *config.Config) string {
	host, port, err := net.SplitHostPort(cfg.API.Bind)
	if err != nil {
		return "http://" + cfg.API.Bind
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func formatMessage(msg broadcast.Message) string {
	var b strings.Builder
	if msg.Seq > 0 {
		fmt.Fprintf(&b, "#%d ", msg.Seq)
	}
	fmt.Fprintf(&b, "%s/%s", msg.Group, msg.Event)
	if msg.Key != "" {
		fmt.Fprintf(&b, " %s", msg.Key)
	}
	if !msg.Time.IsZero() {
		fmt.Fprintf(&b, " at %s", msg.Time.Local().Format("15:04:05"))
	}
	return b.String()
}
