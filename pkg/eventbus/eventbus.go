// Package eventbus delivers live execution events over redis pub/sub and durable events through
// kafka.
package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "gp:events:execution:"

type Event struct {
	Type        string          `json:"type"`
	ExecutionID string          `json:"execution_id"`
	Timestamp   int64           `json:"timestamp"`
	Data        json.RawMessage `json:"data"`
}

// ExecutionChannel is the redis channel carrying events of one execution.
func ExecutionChannel(executionID uuid.UUID) string {
	return channelPrefix + executionID.String()
}

type Bus struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewBus(client redis.UniversalClient) *Bus {
	return &Bus{client: client, now: time.Now}
}

func NewEvent(eventType string, executionID uuid.UUID, payload interface{}, at time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:        eventType,
		ExecutionID: executionID.String(),
		Timestamp:   at.Unix(),
		Data:        data,
	}, nil
}

// PublishExecutionEvent publishes a live event on the execution's channel.
func (b *Bus) PublishExecutionEvent(ctx context.Context, executionID uuid.UUID, eventType string, payload map[string]interface{}) error {
	event, err := NewEvent(eventType, executionID, payload, b.now())
	if err != nil {
		return err
	}
	return b.Publish(ctx, ExecutionChannel(executionID), event)
}

func (b *Bus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *Bus) Publish(ctx context.Context, channel string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, payload).Err()
}

// Subscribe streams events from the given channels until ctx is done. Undecodable messages are
// dropped.
func (b *Bus) Subscribe(ctx context.Context, channels ...string) <-chan *Event {
	sub := b.client.Subscribe(ctx, channels...)
	ch := make(chan *Event, 100)

	go func() {
		defer close(ch)
		for msg := range sub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			select {
			case ch <- &event:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	return ch
}
