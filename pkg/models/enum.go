package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownEnum is returned when decoding a value outside an enumeration.
var ErrUnknownEnum = errors.New("unknown enum value")

var actionTypes = []ActionType{
	ActionChatCompletion,
	ActionEmbedding,
	ActionToolCall,
	ActionWorkflowStep,
}

var leaseOutcomes = []LeaseOutcome{
	OutcomeSuccess,
	OutcomeProviderRateLimit,
	OutcomeTimeout,
	OutcomePolicyDenied,
	OutcomeToolError,
	OutcomeUnknownError,
}

// enumKey folds snake_case, camelCase and PascalCase spellings together.
func enumKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
}

func parseEnum[T ~string](kind, s string, values []T) (T, error) {
	key := enumKey(s)
	for _, v := range values {
		if enumKey(string(v)) == key {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s %q", ErrUnknownEnum, kind, s)
}

// ParseActionType maps any casing of a known action type to its canonical value.
func ParseActionType(s string) (ActionType, error) {
	return parseEnum("action type", s, actionTypes)
}

// Valid reports whether a is a canonical action type.
func (a ActionType) Valid() bool {
	for _, v := range actionTypes {
		if a == v {
			return true
		}
	}
	return false
}

// UnmarshalText accepts known action types in any casing. Empty text decodes
// to the zero value.
func (a *ActionType) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = ""
		return nil
	}
	v, err := ParseActionType(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseLeaseOutcome maps any casing of a known outcome to its canonical value.
func ParseLeaseOutcome(s string) (LeaseOutcome, error) {
	return parseEnum("outcome", s, leaseOutcomes)
}

// Valid reports whether o is a canonical outcome.
func (o LeaseOutcome) Valid() bool {
	for _, v := range leaseOutcomes {
		if o == v {
			return true
		}
	}
	return false
}

// UnmarshalText accepts known outcomes in any casing. Empty text decodes to
// the zero value.
func (o *LeaseOutcome) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*o = ""
		return nil
	}
	v, err := ParseLeaseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}
