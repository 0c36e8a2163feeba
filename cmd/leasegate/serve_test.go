package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/leasegate/pkg/audit"
	"github.com/pario-ai/leasegate/pkg/client"
	"github.com/pario-ai/leasegate/pkg/config"
	"github.com/pario-ai/leasegate/pkg/models"
)

func TestServeEndToEnd(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte("allowed_models: [gpt-4o-mini]\n"), 0644))

	cfg := config.Default()
	cfg.Listen.Address = filepath.Join(dir, "lg.sock")
	cfg.Policy.Path = policyPath
	cfg.Audit.Sink = "sqlite"
	cfg.Audit.DBPath = filepath.Join(dir, "audit.db")
	cfg.Metrics.Listen = "127.0.0.1:0"
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))) }()

	c := client.New("unix", cfg.Listen.Address)
	var acq models.AcquireResponse
	require.Eventually(t, func() bool {
		var err error
		acq, err = c.Acquire(context.Background(), models.AcquireRequest{
			ActorID:            "ci",
			ActionType:         models.ActionChatCompletion,
			ModelID:            "gpt-4o-mini",
			EstimatedCostCents: 5,
		})
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	require.True(t, acq.Granted)

	denied, err := c.Acquire(context.Background(), models.AcquireRequest{ModelID: "other", ActionType: models.ActionChatCompletion})
	require.NoError(t, err)
	assert.Equal(t, models.ReasonModelNotAllowed, denied.DeniedReason)

	rel, err := c.Release(context.Background(), models.ReleaseRequest{LeaseID: acq.LeaseID, ActualCostCents: 4, Outcome: models.OutcomeSuccess})
	require.NoError(t, err)
	assert.Equal(t, models.ReleaseRecorded, rel.Classification)

	cancel()
	require.NoError(t, <-errCh)

	w, err := audit.NewSQLiteWriter(cfg.Audit.DBPath, 0)
	require.NoError(t, err)
	defer w.Close()
	events, err := w.Query(context.Background(), models.AuditQueryOpts{})
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestOpenAuditSink(t *testing.T) {
	w, closeFn, err := openAuditSink(config.AuditConfig{Sink: "none"})
	require.NoError(t, err)
	closeFn()
	assert.IsType(t, audit.Nop{}, w)

	w, closeFn, err = openAuditSink(config.AuditConfig{Sink: "jsonl", Dir: t.TempDir()})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &audit.JSONLWriter{}, w)

	dir := t.TempDir()
	w, closeBoth, err := openAuditSink(config.AuditConfig{Sink: "both", Dir: dir, DBPath: filepath.Join(dir, "audit.db")})
	require.NoError(t, err)
	defer closeBoth()
	require.IsType(t, audit.Multi{}, w)
	assert.Len(t, w.(audit.Multi), 2)
}
