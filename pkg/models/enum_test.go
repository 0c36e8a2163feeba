package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestActionTypeDecodeCaseInsensitive(t *testing.T) {
	for _, in := range []string{"chat_completion", "CHAT_COMPLETION", "chatCompletion", "ChatCompletion"} {
		var req AcquireRequest
		require.NoError(t, json.Unmarshal([]byte(`{"actionType":"`+in+`"}`), &req), in)
		assert.Equal(t, ActionChatCompletion, req.ActionType, in)
	}
}

func TestActionTypeDecodeRejectsUnknown(t *testing.T) {
	var req AcquireRequest
	err := json.Unmarshal([]byte(`{"actionType":"bogus"}`), &req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownEnum)
}

func TestLeaseOutcomeDecode(t *testing.T) {
	var req ReleaseRequest
	require.NoError(t, json.Unmarshal([]byte(`{"outcome":"ProviderRateLimit"}`), &req))
	assert.Equal(t, OutcomeProviderRateLimit, req.Outcome)

	require.NoError(t, json.Unmarshal([]byte(`{"outcome":""}`), &req))
	assert.Equal(t, LeaseOutcome(""), req.Outcome)

	assert.ErrorIs(t, json.Unmarshal([]byte(`{"outcome":"exploded"}`), &req), ErrUnknownEnum)
}

func TestActionTypeMapKeys(t *testing.T) {
	var fromJSON map[ActionType][]string
	require.NoError(t, json.Unmarshal([]byte(`{"TOOL_CALL":["read"]}`), &fromJSON))
	assert.Equal(t, []string{"read"}, fromJSON[ActionToolCall])

	var fromYAML map[ActionType][]string
	require.NoError(t, yaml.Unmarshal([]byte("toolCall: [read]\n"), &fromYAML))
	assert.Equal(t, []string{"read"}, fromYAML[ActionToolCall])

	err := yaml.Unmarshal([]byte("shell: [read]\n"), &fromYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown enum value")
}

func TestValid(t *testing.T) {
	assert.True(t, ActionEmbedding.Valid())
	assert.False(t, ActionType("Embedding").Valid())
	assert.False(t, ActionType("").Valid())
	assert.True(t, OutcomeTimeout.Valid())
	assert.False(t, LeaseOutcome("late").Valid())
}
