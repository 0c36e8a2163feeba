package models

import "time"

// ActionType classifies the kind of model call a lease is requested for.
type ActionType string

const (
	ActionChatCompletion ActionType = "chat_completion"
	ActionEmbedding      ActionType = "embedding"
	ActionToolCall       ActionType = "tool_call"
	ActionWorkflowStep   ActionType = "workflow_step"
)

// LeaseOutcome reports how the governed call finished.
type LeaseOutcome string

const (
	OutcomeSuccess           LeaseOutcome = "success"
	OutcomeProviderRateLimit LeaseOutcome = "provider_rate_limit"
	OutcomeTimeout           LeaseOutcome = "timeout"
	OutcomePolicyDenied      LeaseOutcome = "policy_denied"
	OutcomeToolError         LeaseOutcome = "tool_error"
	OutcomeUnknownError      LeaseOutcome = "unknown_error"
)

// ReleaseClassification is the result of a release.
type ReleaseClassification string

const (
	ReleaseRecorded      ReleaseClassification = "recorded"
	ReleaseLeaseNotFound ReleaseClassification = "lease_not_found"
	ReleaseLeaseExpired  ReleaseClassification = "lease_expired"
)

// Denial reason codes.
const (
	ReasonModelNotAllowed         = "model_not_allowed"
	ReasonCapabilityNotAllowed    = "capability_not_allowed"
	ReasonRiskRequiresApproval    = "risk_requires_approval"
	ReasonConcurrencyLimitReached = "concurrency_limit_reached"
	ReasonDailyBudgetExceeded     = "daily_budget_exceeded"
)

// AcquireRequest asks for permission to make one model call.
type AcquireRequest struct {
	ActorID               string     `json:"actorId"`
	WorkspaceID           string     `json:"workspaceId"`
	ActionType            ActionType `json:"actionType"`
	ModelID               string     `json:"modelId"`
	ProviderID            string     `json:"providerId"`
	EstimatedPromptTokens int        `json:"estimatedPromptTokens"`
	MaxOutputTokens       int        `json:"maxOutputTokens"`
	EstimatedCostCents    int        `json:"estimatedCostCents"`
	RequestedCapabilities []string   `json:"requestedCapabilities,omitempty"`
	RiskFlags             []string   `json:"riskFlags,omitempty"`
	IdempotencyKey        string     `json:"idempotencyKey"`
}

// LeaseConstraints are optional overrides the caller must honor.
type LeaseConstraints struct {
	MaxOutputTokensOverride *int   `json:"maxOutputTokensOverride,omitempty"`
	ForcedModelID           string `json:"forcedModelId,omitempty"`
}

// AcquireResponse is the governor's admission decision.
type AcquireResponse struct {
	Granted        bool             `json:"granted"`
	LeaseID        string           `json:"leaseId"`
	ExpiresAtUTC   time.Time        `json:"expiresAtUtc"`
	Constraints    LeaseConstraints `json:"constraints"`
	DeniedReason   string           `json:"deniedReason"`
	RetryAfterMs   *int             `json:"retryAfterMs,omitempty"`
	Recommendation string           `json:"recommendation"`
	IdempotencyKey string           `json:"idempotencyKey"`
}

// ReleaseRequest reports the actual usage of a finished call.
type ReleaseRequest struct {
	LeaseID            string       `json:"leaseId"`
	ActualPromptTokens int          `json:"actualPromptTokens"`
	ActualOutputTokens int          `json:"actualOutputTokens"`
	ActualCostCents    int          `json:"actualCostCents"`
	ToolCallsCount     int          `json:"toolCallsCount"`
	BytesIn            int64        `json:"bytesIn"`
	BytesOut           int64        `json:"bytesOut"`
	Outcome            LeaseOutcome `json:"outcome"`
	IdempotencyKey     string       `json:"idempotencyKey"`
}

// ReleaseResponse acknowledges a release.
type ReleaseResponse struct {
	Classification ReleaseClassification `json:"classification"`
	Recommendation string                `json:"recommendation"`
	IdempotencyKey string                `json:"idempotencyKey"`
}

// Lease is an active admission grant held by the lease store.
type Lease struct {
	LeaseID        string
	IdempotencyKey string
	Request        AcquireRequest
	AcquiredAtUTC  time.Time
	ExpiresAtUTC   time.Time
}
