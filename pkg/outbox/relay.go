// Package outbox relays events committed alongside state changes to kafka.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/eventbus"
	"github.com/guidepath/guidepath/pkg/metrics"
	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

type Producer interface {
	PublishEvent(ctx context.Context, key, value []byte, headers ...kafka.Header) error
	PublishDLQ(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

type Relay struct {
	repo         store.OutboxRepository
	producer     Producer
	logger       *zap.Logger
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time
}

type Message struct {
	EventID     string      `json:"event_id"`
	EventType   string      `json:"event_type"`
	ExecutionID string      `json:"execution_id"`
	Payload     model.JSONB `json:"payload"`
	CreatedAt   time.Time   `json:"created_at"`
}

type DLQMessage struct {
	Event    Message   `json:"event"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

func NewRelay(repo store.OutboxRepository, producer Producer, logger *zap.Logger, pollInterval time.Duration, batchSize int) *Relay {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		repo:         repo,
		producer:     producer,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		now:          time.Now,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay starting",
		zap.Duration("poll_interval", r.pollInterval),
		zap.Int("batch_size", r.batchSize),
	)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.ProcessPending(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay shutting down")
			return ctx.Err()
		case <-ticker.C:
			r.ProcessPending(ctx)
		}
	}
}

// ProcessPending relays one batch and returns how many events left the pending state.
func (r *Relay) ProcessPending(ctx context.Context) int {
	events, err := r.repo.ListPending(ctx, r.batchSize)
	if err != nil {
		r.logger.Warn("failed to list pending outbox events", zap.Error(err))
		return 0
	}

	done := 0
	for _, event := range events {
		if err := r.publishEvent(ctx, event); err != nil {
			r.logger.Warn("failed to publish outbox event", zap.Error(err), zap.String("event_id", event.EventID.String()))
			continue
		}
		done++
	}
	return done
}

func (r *Relay) publishEvent(ctx context.Context, event model.OutboxEvent) error {
	message := Message{
		EventID:     event.EventID.String(),
		EventType:   event.EventType,
		ExecutionID: event.ExecutionID.String(),
		Payload:     event.Payload,
		CreatedAt:   event.CreatedAt,
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	key := []byte(message.ExecutionID)
	headers := []kafka.Header{
		{Key: eventbus.HeaderEventID, Value: []byte(message.EventID)},
		{Key: eventbus.HeaderEventType, Value: []byte(message.EventType)},
		{Key: eventbus.HeaderExecutionID, Value: []byte(message.ExecutionID)},
	}

	if err := r.producer.PublishEvent(ctx, key, payload, headers...); err != nil {
		r.logger.Warn("failed to publish to kafka, sending to DLQ", zap.Error(err), zap.String("event_id", message.EventID))
		return r.publishDLQ(ctx, event, message, err)
	}

	if err := r.repo.MarkPublished(ctx, event.EventID, r.now()); err != nil {
		r.logger.Warn("failed to mark event published", zap.Error(err), zap.String("event_id", message.EventID))
		return err
	}
	metrics.OutboxEventsTotal.WithLabelValues("published").Inc()
	return nil
}

func (r *Relay) publishDLQ(ctx context.Context, event model.OutboxEvent, message Message, publishErr error) error {
	dlq := DLQMessage{
		Event:    message,
		Error:    publishErr.Error(),
		FailedAt: r.now(),
	}

	payload, err := json.Marshal(dlq)
	if err != nil {
		return err
	}

	if err := r.producer.PublishDLQ(ctx, []byte(message.ExecutionID), payload,
		kafka.Header{Key: eventbus.HeaderEventID, Value: []byte(message.EventID)},
		kafka.Header{Key: eventbus.HeaderDLQError, Value: []byte(publishErr.Error())},
	); err != nil {
		metrics.OutboxEventsTotal.WithLabelValues("error").Inc()
		return err
	}

	if err := r.repo.MarkFailed(ctx, event.EventID); err != nil {
		r.logger.Warn("failed to mark event failed", zap.Error(err), zap.String("event_id", message.EventID))
		return err
	}
	metrics.OutboxEventsTotal.WithLabelValues("dead_lettered").Inc()
	return nil
}
