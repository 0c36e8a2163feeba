package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pario-ai/leasegate/pkg/client"
	"github.com/pario-ai/leasegate/pkg/config"
	"github.com/pario-ai/leasegate/pkg/models"
)

func newAcquireCmd() *cobra.Command {
	var (
		configPath string
		req        models.AcquireRequest
		action     string
		caps       string
		risks      string
	)

	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Request a lease from a running governor",
		RunE: func(cmd *cobra.Command, args []string) error {
			actionType, err := models.ParseActionType(action)
			if err != nil {
				return err
			}
			c, err := dialGovernor(configPath)
			if err != nil {
				return err
			}
			req.ActionType = actionType
			req.RequestedCapabilities = splitList(caps)
			req.RiskFlags = splitList(risks)

			resp, err := c.Acquire(context.Background(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "path to config file")
	f.StringVar(&req.ActorID, "actor", "", "actor id")
	f.StringVar(&req.WorkspaceID, "workspace", "", "workspace id")
	f.StringVar(&action, "action", string(models.ActionChatCompletion), "action type")
	f.StringVar(&req.ModelID, "model", "", "model id")
	f.StringVar(&req.ProviderID, "provider", "", "provider id")
	f.IntVar(&req.EstimatedPromptTokens, "prompt-tokens", 0, "estimated prompt tokens")
	f.IntVar(&req.MaxOutputTokens, "max-output-tokens", 0, "maximum output tokens")
	f.IntVar(&req.EstimatedCostCents, "cost", 0, "estimated cost in cents")
	f.StringVar(&caps, "capabilities", "", "comma-separated requested capabilities")
	f.StringVar(&risks, "risk", "", "comma-separated risk flags")
	f.StringVar(&req.IdempotencyKey, "idempotency-key", "", "idempotency key")
	return cmd
}

func newReleaseCmd() *cobra.Command {
	var (
		configPath string
		req        models.ReleaseRequest
		outcome    string
	)

	cmd := &cobra.Command{
		Use:   "release LEASE_ID",
		Short: "Release a lease and record its actual cost",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := models.ParseLeaseOutcome(outcome)
			if err != nil {
				return err
			}
			c, err := dialGovernor(configPath)
			if err != nil {
				return err
			}
			req.LeaseID = args[0]
			req.Outcome = out

			resp, err := c.Release(context.Background(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "path to config file")
	f.IntVar(&req.ActualPromptTokens, "prompt-tokens", 0, "actual prompt tokens")
	f.IntVar(&req.ActualOutputTokens, "output-tokens", 0, "actual output tokens")
	f.IntVar(&req.ActualCostCents, "cost", 0, "actual cost in cents")
	f.IntVar(&req.ToolCallsCount, "tool-calls", 0, "tool calls made")
	f.Int64Var(&req.BytesIn, "bytes-in", 0, "bytes received")
	f.Int64Var(&req.BytesOut, "bytes-out", 0, "bytes sent")
	f.StringVar(&outcome, "outcome", string(models.OutcomeSuccess), "call outcome")
	f.StringVar(&req.IdempotencyKey, "idempotency-key", "", "idempotency key")
	return cmd
}

func dialGovernor(configPath string) (*client.Client, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return client.New(cfg.Listen.Network, cfg.Listen.Address,
		client.WithTimeout(cfg.Listen.ReadTimeout),
		client.WithMaxFrameBytes(cfg.Listen.MaxFrameBytes),
	), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
