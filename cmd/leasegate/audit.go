package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pario-ai/leasegate/pkg/audit"
	"github.com/pario-ai/leasegate/pkg/config"
	"github.com/pario-ai/leasegate/pkg/models"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the SQLite audit log",
	}

	cmd.AddCommand(
		newAuditSearchCmd(),
		newAuditStatsCmd(),
		newAuditCleanupCmd(),
	)
	return cmd
}

func newAuditSearchCmd() *cobra.Command {
	var (
		configPath string
		opts       models.AuditQueryOpts
		since      string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, cleanup, err := openAuditDB(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			events, err := w.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatAuditEvents(events))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "path to config file")
	f.StringVar(&opts.EventType, "type", "", "filter by event type")
	f.StringVar(&opts.ActorID, "actor", "", "filter by actor id")
	f.StringVar(&opts.WorkspaceID, "workspace", "", "filter by workspace id")
	f.StringVar(&opts.LeaseID, "lease", "", "filter by lease id")
	f.StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	f.IntVar(&opts.Limit, "limit", 50, "max events to return")
	return cmd
}

func newAuditStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show audit event counts and spend by type and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, cleanup, err := openAuditDB(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := w.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatAuditStats(stats))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func newAuditCleanupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit events older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, cleanup, err := openAuditDB(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := w.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit events.\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func openAuditDB(configPath string) (*audit.SQLiteWriter, func(), error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, err
	}

	w, err := audit.NewSQLiteWriter(cfg.Audit.DBPath, cfg.Audit.RetentionDays)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db: %w", err)
	}
	return w, func() { _ = w.Close() }, nil
}

func formatAuditEvents(events []models.AuditEvent) string {
	if len(events) == 0 {
		return "No audit events found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-15s %-38s %-12s %-20s %8s %8s %-26s\n",
		"TIME", "TYPE", "LEASE ID", "ACTOR", "MODEL", "EST", "ACTUAL", "REASON")
	b.WriteString(strings.Repeat("-", 154) + "\n")
	for _, e := range events {
		fmt.Fprintf(&b, "%-20s %-15s %-38s %-12s %-20s %8d %8d %-26s\n",
			e.TimestampUTC.Format("2006-01-02 15:04:05"), e.EventType, e.LeaseID,
			e.ActorID, e.ModelID, e.EstimatedCostCents, e.ActualCostCents, e.Reason)
	}
	return b.String()
}

func formatAuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No audit stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %-12s %8s %14s\n", "TYPE", "DAY", "COUNT", "COST CENTS")
	b.WriteString(strings.Repeat("-", 53) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-16s %-12s %8d %14s\n", s.EventType, s.Day, s.Count, humanize.Comma(s.CostCents))
	}
	return b.String()
}
