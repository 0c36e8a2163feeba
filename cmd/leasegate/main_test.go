package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/leasegate/pkg/models"
	"github.com/pario-ai/leasegate/pkg/policy"
)

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"fs.read", "net"}, splitList(" fs.read, ,net "))
}

func TestFormatAuditEvents(t *testing.T) {
	assert.Equal(t, "No audit events found.\n", formatAuditEvents(nil))

	out := formatAuditEvents([]models.AuditEvent{{
		EventType:    models.EventLeaseDenied,
		TimestampUTC: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		ActorID:      "bob",
		ModelID:      "gpt-4o",
		Reason:       models.ReasonDailyBudgetExceeded,
	}})
	assert.Contains(t, out, "2026-03-01 09:30:00")
	assert.Contains(t, out, "daily_budget_exceeded")
}

func TestFormatAuditStats(t *testing.T) {
	assert.Equal(t, "No audit stats found.\n", formatAuditStats(nil))
	out := formatAuditStats([]models.AuditStat{{EventType: models.EventLeaseReleased, Day: "2026-03-01", Count: 4, CostCents: 123456}})
	assert.Contains(t, out, "lease_released")
	assert.Contains(t, out, "123,456")
}

func TestPolicySummary(t *testing.T) {
	snap, err := policy.Parse([]byte("allowed_models: [gpt-4o]\nallowed_capabilities:\n  tool_call: [fs.read]\n"))
	require.NoError(t, err)

	var buf bytes.Buffer
	writePolicySummary(&buf, snap)
	out := buf.String()
	assert.Contains(t, out, snap.Hash)
	assert.Contains(t, out, "tool_call: fs.read")
	assert.Contains(t, out, "Needs approval:  none")
}

func TestPolicyEvalCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("risk_requires_approval: [pii]\n"), 0644))

	cmd := newPolicyCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"eval", path, "--model", "m", "--risk", "pii"})
	require.NoError(t, cmd.Execute())

	var decision models.PolicyDecision
	require.NoError(t, json.Unmarshal(out.Bytes(), &decision))
	assert.False(t, decision.Allowed)
	assert.Equal(t, models.ReasonRiskRequiresApproval, decision.DeniedReason)
}

func TestPolicyEvalRejectsUnknownAction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("allowed_capabilities:\n  chat_completion: [read]\n"), 0644))

	cmd := newPolicyCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"eval", path, "--action", "shell", "--capabilities", "exec"})
	err := cmd.Execute()
	require.ErrorIs(t, err, models.ErrUnknownEnum)
}
