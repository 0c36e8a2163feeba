package governor

import (
	"errors"
	"fmt"

	"github.com/pario-ai/leasegate/pkg/models"
)

// ErrInvalidRequest is returned for a request that fails validation. No
// governor state is touched.
var ErrInvalidRequest = errors.New("invalid_request")

func nonNegative(field string, v int64) error {
	if v < 0 {
		return fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidRequest, field, v)
	}
	return nil
}

// normalizeAcquire canonicalizes the action type and rejects negative counts.
func normalizeAcquire(req models.AcquireRequest) (models.AcquireRequest, error) {
	if req.ActionType == "" {
		return req, fmt.Errorf("%w: actionType is required", ErrInvalidRequest)
	}
	action, err := models.ParseActionType(string(req.ActionType))
	if err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	req.ActionType = action

	return req, errors.Join(
		nonNegative("estimatedCostCents", int64(req.EstimatedCostCents)),
		nonNegative("estimatedPromptTokens", int64(req.EstimatedPromptTokens)),
		nonNegative("maxOutputTokens", int64(req.MaxOutputTokens)),
	)
}

// normalizeRelease canonicalizes the outcome and rejects negative counts. An
// empty outcome is allowed.
func normalizeRelease(req models.ReleaseRequest) (models.ReleaseRequest, error) {
	if req.Outcome != "" {
		outcome, err := models.ParseLeaseOutcome(string(req.Outcome))
		if err != nil {
			return req, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		req.Outcome = outcome
	}

	return req, errors.Join(
		nonNegative("actualCostCents", int64(req.ActualCostCents)),
		nonNegative("actualPromptTokens", int64(req.ActualPromptTokens)),
		nonNegative("actualOutputTokens", int64(req.ActualOutputTokens)),
		nonNegative("toolCallsCount", int64(req.ToolCallsCount)),
		nonNegative("bytesIn", req.BytesIn),
		nonNegative("bytesOut", req.BytesOut),
	)
}
