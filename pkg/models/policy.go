package models

// PolicyDecision is the policy engine's verdict on an acquire request.
type PolicyDecision struct {
	Allowed        bool   `json:"allowed"`
	DeniedReason   string `json:"deniedReason,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// Allow returns an allowing decision.
func Allow() PolicyDecision {
	return PolicyDecision{Allowed: true}
}

// Deny returns a denying decision with a reason code and recommendation.
func Deny(reason, recommendation string) PolicyDecision {
	return PolicyDecision{DeniedReason: reason, Recommendation: recommendation}
}
