package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store/memory"
)

type sent struct {
	key     string
	value   []byte
	headers []kafka.Header
}

type fakeProducer struct {
	failEvents bool
	events     []sent
	dlq        []sent
}

func (p *fakeProducer) PublishEvent(_ context.Context, key, value []byte, headers ...kafka.Header) error {
	if p.failEvents {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, sent{string(key), value, headers})
	return nil
}

func (p *fakeProducer) PublishDLQ(_ context.Context, key, value []byte, headers ...kafka.Header) error {
	p.dlq = append(p.dlq, sent{string(key), value, headers})
	return nil
}

func enqueue(t *testing.T, st *memory.Store, executionID uuid.UUID, eventType string) {
	t.Helper()
	require.NoError(t, st.Outbox().Enqueue(context.Background(), &model.OutboxEvent{
		EventType:   eventType,
		ExecutionID: executionID,
		Payload:     model.JSONB{"step_index": 1},
	}))
}

func TestRelayPublishesPendingEvents(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	execID := uuid.New()
	enqueue(t, st, execID, "execution_created")
	enqueue(t, st, execID, "step_snoozed")

	producer := &fakeProducer{}
	relay := NewRelay(st.Outbox(), producer, zap.NewNop(), 0, 10)

	assert.Equal(t, 2, relay.ProcessPending(ctx))
	require.Len(t, producer.events, 2)
	assert.Equal(t, execID.String(), producer.events[0].key)

	var msg Message
	require.NoError(t, json.Unmarshal(producer.events[1].value, &msg))
	assert.Equal(t, "step_snoozed", msg.EventType)
	assert.Equal(t, execID.String(), msg.ExecutionID)

	pending, err := st.Outbox().ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Zero(t, relay.ProcessPending(ctx))
}

func TestRelaySendsFailuresToDLQ(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	enqueue(t, st, uuid.New(), "step_completed")

	producer := &fakeProducer{failEvents: true}
	relay := NewRelay(st.Outbox(), producer, zap.NewNop(), 0, 10)

	assert.Equal(t, 1, relay.ProcessPending(ctx))
	require.Len(t, producer.dlq, 1)

	var dlq DLQMessage
	require.NoError(t, json.Unmarshal(producer.dlq[0].value, &dlq))
	assert.Equal(t, "broker unavailable", dlq.Error)
	assert.Equal(t, "step_completed", dlq.Event.EventType)

	pending, err := st.Outbox().ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
