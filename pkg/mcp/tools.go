package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pario-ai/leasegate/pkg/models"
)

const (
	toolAcquire     = "leasegate_acquire"
	toolRelease     = "leasegate_release"
	toolStatus      = "leasegate_status"
	toolAuditSearch = "leasegate_audit_search"
)

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func stringList(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
}

var acquireTool = ToolDefinition{
	Name:        toolAcquire,
	Description: "Ask the governor for permission to make one model call. Returns a lease to release afterwards, or a denial with a reason and retry hint.",
	InputSchema: map[string]any{
		"type":     "object",
		"required": []string{"actorId", "actionType", "modelId", "estimatedCostCents"},
		"properties": map[string]any{
			"actorId":               prop("string", "Caller identity"),
			"workspaceId":           prop("string", "Workspace identity"),
			"actionType":            prop("string", "chat_completion, embedding, tool_call, or workflow_step"),
			"modelId":               prop("string", "Model to call"),
			"providerId":            prop("string", "Provider serving the model"),
			"estimatedPromptTokens": prop("integer", "Estimated prompt tokens"),
			"maxOutputTokens":       prop("integer", "Maximum output tokens"),
			"estimatedCostCents":    prop("integer", "Estimated cost in cents"),
			"requestedCapabilities": stringList("Capabilities the call needs"),
			"riskFlags":             stringList("Risk flags raised by the call"),
			"idempotencyKey":        prop("string", "Key that makes retries return the same lease"),
		},
	},
}

var releaseTool = ToolDefinition{
	Name:        toolRelease,
	Description: "Release a lease after the model call finished and record its actual cost.",
	InputSchema: map[string]any{
		"type":     "object",
		"required": []string{"leaseId", "actualCostCents", "outcome"},
		"properties": map[string]any{
			"leaseId":            prop("string", "Lease id returned by leasegate_acquire"),
			"actualPromptTokens": prop("integer", "Actual prompt tokens"),
			"actualOutputTokens": prop("integer", "Actual output tokens"),
			"actualCostCents":    prop("integer", "Actual cost in cents"),
			"toolCallsCount":     prop("integer", "Tool calls made"),
			"bytesIn":            prop("integer", "Bytes received"),
			"bytesOut":           prop("integer", "Bytes sent"),
			"outcome":            prop("string", "success, provider_rate_limit, timeout, policy_denied, tool_error, or unknown_error"),
			"idempotencyKey":     prop("string", "Echoed back in the response"),
		},
	},
}

var statusTool = ToolDefinition{
	Name:        toolStatus,
	Description: "Show held concurrency slots, today's reserved spend, live leases, and the active policy hash.",
	InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
}

var auditSearchTool = ToolDefinition{
	Name:        toolAuditSearch,
	Description: "Search recorded governor decisions.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"eventType": prop("string", "lease_acquired, lease_denied, lease_released, or lease_expired (optional)"),
			"actorId":   prop("string", "Filter by actor (optional)"),
			"leaseId":   prop("string", "Filter by lease (optional)"),
			"since":     prop("string", "Start date in YYYY-MM-DD format (optional)"),
			"limit":     prop("integer", "Maximum events, default 50"),
		},
	},
}

func (s *Server) tools() []ToolDefinition {
	tools := []ToolDefinition{acquireTool, releaseTool}
	if s.status != nil {
		tools = append(tools, statusTool)
	}
	if s.auditor != nil {
		tools = append(tools, auditSearchTool)
	}
	return tools
}

func (s *Server) call(ctx context.Context, p ToolCallParams) ToolCallResult {
	switch p.Name {
	case toolAcquire:
		var req models.AcquireRequest
		if err := decodeArgs(p.Arguments, &req); err != nil {
			return errorResult(err.Error())
		}
		resp, err := s.leaser.Acquire(ctx, req)
		if err != nil {
			return errorResult("acquire failed: " + err.Error())
		}
		return jsonResult(resp)
	case toolRelease:
		var req models.ReleaseRequest
		if err := decodeArgs(p.Arguments, &req); err != nil {
			return errorResult(err.Error())
		}
		if req.LeaseID == "" {
			return errorResult("leaseId is required")
		}
		resp, err := s.leaser.Release(ctx, req)
		if err != nil {
			return errorResult("release failed: " + err.Error())
		}
		return jsonResult(resp)
	case toolStatus:
		if s.status != nil {
			return textResult(fmt.Sprintf("Active leases:   %d\nReserved cents:  %d\nDaily budget:    %d\nLive leases:     %d\nPolicy hash:     %s\n",
				s.status.Active(), s.status.ReservedCents(), s.status.CentsPerDay(), s.status.LiveLeases(), s.status.PolicyHash()))
		}
	case toolAuditSearch:
		if s.auditor != nil {
			return s.auditSearch(ctx, p.Arguments)
		}
	}
	return errorResult("unknown tool: " + p.Name)
}

type auditSearchArgs struct {
	EventType string `json:"eventType"`
	ActorID   string `json:"actorId"`
	LeaseID   string `json:"leaseId"`
	Since     string `json:"since"`
	Limit     int    `json:"limit"`
}

func (s *Server) auditSearch(ctx context.Context, raw json.RawMessage) ToolCallResult {
	var args auditSearchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	opts := models.AuditQueryOpts{
		EventType: args.EventType,
		ActorID:   args.ActorID,
		LeaseID:   args.LeaseID,
		Limit:     args.Limit,
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	events, err := s.auditor.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit log: " + err.Error())
	}
	return textResult(formatEvents(events))
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func formatEvents(events []models.AuditEvent) string {
	if len(events) == 0 {
		return "No audit events found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-15s %-38s %-16s %8s %8s %s\n",
		"Time", "Type", "Lease", "Actor", "Est", "Actual", "Reason")
	b.WriteString(strings.Repeat("-", 120) + "\n")
	for _, e := range events {
		fmt.Fprintf(&b, "%-20s %-15s %-38s %-16s %8d %8d %s\n",
			e.TimestampUTC.Format("2006-01-02 15:04:05"), e.EventType, e.LeaseID,
			e.ActorID, e.EstimatedCostCents, e.ActualCostCents, e.Reason)
	}
	return b.String()
}

func jsonResult(v any) ToolCallResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("encode result: " + err.Error())
	}
	return textResult(string(data))
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}
