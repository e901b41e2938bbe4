package eventbus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionChannel(t *testing.T) {
	id := uuid.MustParse("5b0c8a52-8f3c-4a4f-9d6b-0f4a4a7f2c11")
	assert.Equal(t, "gp:events:execution:5b0c8a52-8f3c-4a4f-9d6b-0f4a4a7f2c11", ExecutionChannel(id))
}

func TestNewEvent(t *testing.T) {
	id := uuid.New()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	event, err := NewEvent("step.completed", id, map[string]interface{}{"step_index": 2}, at)
	require.NoError(t, err)
	assert.Equal(t, "step.completed", event.Type)
	assert.Equal(t, id.String(), event.ExecutionID)
	assert.Equal(t, at.Unix(), event.Timestamp)
	assert.JSONEq(t, `{"step_index":2}`, string(event.Data))

	raw, err := json.Marshal(event)
	require.NoError(t, err)
	var decoded Event
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, event.Type, decoded.Type)
	assert.JSONEq(t, string(event.Data), string(decoded.Data))
}

func TestNewEventRejectsUnencodablePayload(t *testing.T) {
	_, err := NewEvent("step.completed", uuid.New(), make(chan int), time.Now())
	assert.Error(t, err)
}
