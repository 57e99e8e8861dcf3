// internal/historian/historian_test.go
package historian

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The JSON keys here are the wire contract between the game server publisher
// and the historian binary; both sides unmarshal into ActionRecord.
func TestActionRecordWireFormat(t *testing.T) {
	rec := ActionRecord{
		SessionID:   uuid.New(),
		ActionIndex: 3,
		TeamName:    "alpha",
		ActionType:  "submitCard",
		Payload:     map[string]interface{}{"index": 2, "phase": "hand"},
		Timestamp:   1700000000000,
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{
		"session_id", "action_index", "team_name", "action_type", "payload", "timestamp",
	} {
		assert.Contains(t, raw, key)
	}

	var parsed ActionRecord
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, rec.SessionID, parsed.SessionID)
	assert.Equal(t, "submitCard", parsed.ActionType)
	assert.Equal(t, "alpha", parsed.TeamName)
}

func TestQueueNameDefaults(t *testing.T) {
	t.Setenv("HISTORIAN_QUEUE_NAME", "")
	assert.Equal(t, DefaultQueueName, getEnv("HISTORIAN_QUEUE_NAME", DefaultQueueName))

	t.Setenv("HISTORIAN_QUEUE_NAME", "custom_queue")
	assert.Equal(t, "custom_queue", getEnv("HISTORIAN_QUEUE_NAME", DefaultQueueName))
}
