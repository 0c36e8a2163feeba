package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/leasegate/internal/clock"
	"github.com/pario-ai/leasegate/pkg/audit"
	"github.com/pario-ai/leasegate/pkg/config"
	"github.com/pario-ai/leasegate/pkg/governor"
	"github.com/pario-ai/leasegate/pkg/logging"
	"github.com/pario-ai/leasegate/pkg/metrics"
	"github.com/pario-ai/leasegate/pkg/policy"
	"github.com/pario-ai/leasegate/pkg/server"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the lease governor on its local socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	engine, closePolicy, err := openPolicy(cfg.Policy, logger)
	if err != nil {
		return err
	}
	defer closePolicy()

	sink, closeAudit, err := openAuditSink(cfg.Audit)
	if err != nil {
		return err
	}
	defer closeAudit()

	var m *metrics.Metrics
	if cfg.Metrics.Listen != "" {
		m = metrics.New()
		sink = m.AuditWriter(sink)
	}

	gov := governor.New(governor.Options{
		MaxInFlight:      cfg.Governor.MaxInFlight,
		DailyBudgetCents: cfg.Governor.DailyBudgetCents,
		LeaseTTL:         cfg.Governor.LeaseTTL,
		SweepInterval:    cfg.Governor.SweepInterval,
	}, engine, sink, governor.WithLogger(logger))
	gov.Start()
	defer func() { _ = gov.Close() }()

	if m != nil {
		m.Observe(gov)
		ms, err := m.Start(cfg.Metrics.Listen, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Shutdown(shutCtx)
		}()
	}

	logger.Info("starting leasegate",
		"max_in_flight", cfg.Governor.MaxInFlight,
		"daily_budget_cents", cfg.Governor.DailyBudgetCents,
		"lease_ttl", cfg.Governor.LeaseTTL.String(),
		"policy_hash", gov.PolicyHash(),
	)

	srv := server.New(gov, server.Options{
		ReadTimeout:   cfg.Listen.ReadTimeout,
		MaxFrameBytes: cfg.Listen.MaxFrameBytes,
	}, logger)
	return srv.ListenAndServe(ctx, cfg.Listen.Network, cfg.Listen.Address)
}

func openPolicy(cfg config.PolicyConfig, logger *slog.Logger) (policy.Engine, func(), error) {
	if cfg.Path == "" {
		return policy.NewStatic(policy.Policy{}), func() {}, nil
	}
	e, err := policy.NewFileEngine(cfg.Path, cfg.HotReload, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("load policy: %w", err)
	}
	return e, func() { _ = e.Close() }, nil
}

func openAuditSink(cfg config.AuditConfig) (audit.Writer, func(), error) {
	switch cfg.Sink {
	case "none":
		return audit.Nop{}, func() {}, nil
	case "sqlite":
		w, err := audit.NewSQLiteWriter(cfg.DBPath, cfg.RetentionDays)
		if err != nil {
			return nil, nil, fmt.Errorf("open audit db: %w", err)
		}
		return w, func() { _ = w.Close() }, nil
	case "both":
		j, err := audit.NewJSONLWriter(cfg.Dir, clock.Real{})
		if err != nil {
			return nil, nil, fmt.Errorf("open audit dir: %w", err)
		}
		db, err := audit.NewSQLiteWriter(cfg.DBPath, cfg.RetentionDays)
		if err != nil {
			return nil, nil, fmt.Errorf("open audit db: %w", err)
		}
		return audit.Multi{j, db}, func() { _ = db.Close() }, nil
	default:
		w, err := audit.NewJSONLWriter(cfg.Dir, clock.Real{})
		if err != nil {
			return nil, nil, fmt.Errorf("open audit dir: %w", err)
		}
		return w, func() {}, nil
	}
}
