package models

import "time"

// Audit event types.
const (
	EventLeaseAcquired = "lease_acquired"
	EventLeaseDenied   = "lease_denied"
	EventLeaseReleased = "lease_released"
	EventLeaseExpired  = "lease_expired"
)

// AuditEvent records one governor decision.
type AuditEvent struct {
	EventType          string    `json:"eventType"`
	TimestampUTC       time.Time `json:"timestampUtc"`
	ProtocolVersion    string    `json:"protocolVersion"`
	PolicyHash         string    `json:"policyHash"`
	LeaseID            string    `json:"leaseId"`
	ActorID            string    `json:"actorId"`
	WorkspaceID        string    `json:"workspaceId"`
	ActionType         string    `json:"actionType"`
	ModelID            string    `json:"modelId"`
	EstimatedCostCents int       `json:"estimatedCostCents"`
	ActualCostCents    int       `json:"actualCostCents"`
	Decision           string    `json:"decision"`
	Reason             string    `json:"reason"`
	Recommendation     string    `json:"recommendation"`
}

// AuditQueryOpts specifies filters for querying audit events.
type AuditQueryOpts struct {
	EventType   string
	ActorID     string
	WorkspaceID string
	LeaseID     string
	Since       time.Time
	Limit       int
}

// AuditStat holds aggregate counts for an event type/day combination.
type AuditStat struct {
	EventType string
	Day       string
	Count     int
	CostCents int64
}
