// Package policy decides whether an acquire request is allowed before any
// resource is reserved.
package policy

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pario-ai/leasegate/pkg/models"
)

// Policy is the admission policy document. Files may be YAML or JSON.
type Policy struct {
	AllowedModels        []string                       `yaml:"allowed_models" json:"allowedModels"`
	AllowedCapabilities  map[models.ActionType][]string `yaml:"allowed_capabilities" json:"allowedCapabilities"`
	RiskRequiresApproval []string                       `yaml:"risk_requires_approval" json:"riskRequiresApproval"`
}

// Snapshot is an immutable view of the active policy.
type Snapshot struct {
	Policy  Policy
	RawText string
	Hash    string
}

// Engine evaluates acquire requests against the current policy.
type Engine interface {
	Snapshot() *Snapshot
	Evaluate(req models.AcquireRequest) models.PolicyDecision
}

// Parse builds a Snapshot from raw policy text. Text starting with '{' is
// read as JSON with camelCase keys, anything else as YAML.
func Parse(raw []byte) (*Snapshot, error) {
	var p Policy
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, fmt.Errorf("parse policy json: %w", err)
		}
	} else if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	return &Snapshot{
		Policy:  p,
		RawText: string(raw),
		Hash:    Hash(raw),
	}, nil
}

// Load reads and parses a policy file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return Parse(data)
}

// Hash returns the lowercase hex SHA-256 of raw.
func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Evaluate checks req against p. Checks run in order: model allow-list,
// per-action capability allow-list, then risk flags requiring approval.
func Evaluate(p Policy, req models.AcquireRequest) models.PolicyDecision {
	if len(p.AllowedModels) > 0 && !containsFold(p.AllowedModels, req.ModelID) {
		return models.Deny(models.ReasonModelNotAllowed, "select an allowed model")
	}

	if len(p.AllowedCapabilities) > 0 && hasAny(req.RequestedCapabilities) {
		action, err := models.ParseActionType(string(req.ActionType))
		if err != nil {
			return models.Deny(models.ReasonCapabilityNotAllowed, "remove restricted capabilities")
		}
		if allowed := p.AllowedCapabilities[action]; len(allowed) > 0 {
			for _, c := range req.RequestedCapabilities {
				if strings.TrimSpace(c) == "" {
					continue
				}
				if !containsFold(allowed, c) {
					return models.Deny(models.ReasonCapabilityNotAllowed, "remove restricted capabilities")
				}
			}
		}
	}

	for _, flag := range req.RiskFlags {
		if strings.TrimSpace(flag) == "" {
			continue
		}
		if containsFold(p.RiskRequiresApproval, flag) {
			return models.Deny(models.ReasonRiskRequiresApproval, "request approval for risky operation")
		}
	}

	return models.Allow()
}

func hasAny(items []string) bool {
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// Static is an Engine over a fixed policy.
type Static struct {
	snap *Snapshot
}

// NewStatic returns an Engine that always evaluates p.
func NewStatic(p Policy) *Static {
	raw, _ := yaml.Marshal(p)
	return &Static{snap: &Snapshot{Policy: p, RawText: string(raw), Hash: Hash(raw)}}
}

// Snapshot returns the fixed snapshot.
func (s *Static) Snapshot() *Snapshot { return s.snap }

// Evaluate checks req against the fixed policy.
func (s *Static) Evaluate(req models.AcquireRequest) models.PolicyDecision {
	return Evaluate(s.snap.Policy, req)
}
