package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/leasegate/pkg/audit"
	"github.com/pario-ai/leasegate/pkg/client"
	"github.com/pario-ai/leasegate/pkg/config"
	"github.com/pario-ai/leasegate/pkg/logging"
	"github.com/pario-ai/leasegate/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose a running governor as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			// stdout is the MCP transport; logs go to stderr.
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}

			c := client.New(cfg.Listen.Network, cfg.Listen.Address,
				client.WithTimeout(cfg.Listen.ReadTimeout),
				client.WithMaxFrameBytes(cfg.Listen.MaxFrameBytes),
			)
			opts := []mcp.Option{mcp.WithLogger(logger)}
			if cfg.Audit.Sink == "sqlite" || cfg.Audit.Sink == "both" {
				w, err := audit.NewSQLiteWriter(cfg.Audit.DBPath, 0)
				if err != nil {
					return fmt.Errorf("open audit db: %w", err)
				}
				defer func() { _ = w.Close() }()
				opts = append(opts, mcp.WithAuditSearch(w))
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("leasegate mcp server ready", slog.String("governor", cfg.Listen.Address))
			return mcp.New(c, version, opts...).Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}
