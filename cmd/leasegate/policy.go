package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pario-ai/leasegate/pkg/models"
	"github.com/pario-ai/leasegate/pkg/policy"
)

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and test admission policy files",
	}
	cmd.AddCommand(newPolicyCheckCmd(), newPolicyEvalCmd())
	return cmd
}

func newPolicyCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE",
		Short: "Parse a policy file and print its hash and rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := policy.Load(args[0])
			if err != nil {
				return err
			}
			writePolicySummary(cmd.OutOrStdout(), snap)
			return nil
		},
	}
}

func newPolicyEvalCmd() *cobra.Command {
	var (
		req    models.AcquireRequest
		action string
		caps   string
		risks  string
	)

	cmd := &cobra.Command{
		Use:   "eval FILE",
		Short: "Evaluate a request against a policy file without contacting the governor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actionType, err := models.ParseActionType(action)
			if err != nil {
				return err
			}
			snap, err := policy.Load(args[0])
			if err != nil {
				return err
			}
			req.ActionType = actionType
			req.RequestedCapabilities = splitList(caps)
			req.RiskFlags = splitList(risks)
			return printJSON(cmd.OutOrStdout(), policy.Evaluate(snap.Policy, req))
		},
	}

	f := cmd.Flags()
	f.StringVar(&action, "action", string(models.ActionChatCompletion), "action type")
	f.StringVar(&req.ModelID, "model", "", "model id")
	f.StringVar(&caps, "capabilities", "", "comma-separated requested capabilities")
	f.StringVar(&risks, "risk", "", "comma-separated risk flags")
	return cmd
}

func writePolicySummary(w io.Writer, snap *policy.Snapshot) {
	p := snap.Policy
	fmt.Fprintf(w, "Hash:            %s\n", snap.Hash)
	fmt.Fprintf(w, "Allowed models:  %s\n", listOrAny(p.AllowedModels))

	actions := make([]string, 0, len(p.AllowedCapabilities))
	for a := range p.AllowedCapabilities {
		actions = append(actions, string(a))
	}
	sort.Strings(actions)
	for _, a := range actions {
		fmt.Fprintf(w, "Capabilities:    %s: %s\n", a, listOrAny(p.AllowedCapabilities[models.ActionType(a)]))
	}

	approval := "none"
	if len(p.RiskRequiresApproval) > 0 {
		approval = strings.Join(p.RiskRequiresApproval, ", ")
	}
	fmt.Fprintf(w, "Needs approval:  %s\n", approval)
}

func listOrAny(items []string) string {
	if len(items) == 0 {
		return "any"
	}
	return strings.Join(items, ", ")
}
