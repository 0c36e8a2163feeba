package client_test

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/leasegate/pkg/client"
	"github.com/pario-ai/leasegate/pkg/governor"
	"github.com/pario-ai/leasegate/pkg/models"
	"github.com/pario-ai/leasegate/pkg/policy"
	"github.com/pario-ai/leasegate/pkg/server"
)

func serveUnix(t *testing.T, p policy.Policy) string {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "lg.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)

	gov := governor.New(governor.Options{MaxInFlight: 2, DailyBudgetCents: 100, LeaseTTL: time.Minute}, policy.NewStatic(p), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.New(gov, server.Options{}, nil).Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = gov.Close()
	})
	return sock
}

func TestAcquireReplayAndRelease(t *testing.T) {
	c := client.New("unix", serveUnix(t, policy.Policy{}), client.WithTimeout(2*time.Second))
	ctx := context.Background()
	req := models.AcquireRequest{
		ActorID:            "actor",
		WorkspaceID:        "ws",
		ActionType:         models.ActionEmbedding,
		ModelID:            "text-embed",
		EstimatedCostCents: 3,
		IdempotencyKey:     "idem-1",
	}

	first, err := c.Acquire(ctx, req)
	require.NoError(t, err)
	require.True(t, first.Granted)
	assert.False(t, first.ExpiresAtUTC.IsZero())

	second, err := c.Acquire(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.LeaseID, second.LeaseID)
	assert.True(t, first.ExpiresAtUTC.Equal(second.ExpiresAtUTC))

	rel, err := c.Release(ctx, models.ReleaseRequest{LeaseID: first.LeaseID, ActualCostCents: 2, Outcome: models.OutcomeSuccess, IdempotencyKey: "rel"})
	require.NoError(t, err)
	assert.Equal(t, models.ReleaseRecorded, rel.Classification)
	assert.Equal(t, "rel", rel.IdempotencyKey)

	rel, err = c.Release(ctx, models.ReleaseRequest{LeaseID: first.LeaseID})
	require.NoError(t, err)
	assert.Equal(t, models.ReleaseLeaseNotFound, rel.Classification)
}

func TestPolicyDenialOverTheWire(t *testing.T) {
	c := client.New("unix", serveUnix(t, policy.Policy{AllowedModels: []string{"gpt-4o"}}))

	resp, err := c.Acquire(context.Background(), models.AcquireRequest{ModelID: "claude", ActionType: models.ActionChatCompletion})
	require.NoError(t, err)
	assert.False(t, resp.Granted)
	assert.Equal(t, models.ReasonModelNotAllowed, resp.DeniedReason)
	assert.Equal(t, "select an allowed model", resp.Recommendation)
	assert.Nil(t, resp.RetryAfterMs)
}

func TestDialFailure(t *testing.T) {
	c := client.New("unix", filepath.Join(t.TempDir(), "absent.sock"))
	_, err := c.Acquire(context.Background(), models.AcquireRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial unix")
}
