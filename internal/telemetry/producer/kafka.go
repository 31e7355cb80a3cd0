// Package producer publishes application lifecycle events to Kafka for the event worker.
package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"gymhub/backend/internal/logger"
	"gymhub/backend/internal/telemetry"
)

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// writeTimeout bounds one WriteMessages call.
const writeTimeout = 5 * time.Second

var _ telemetry.EventEmitter = (*KafkaProducer)(nil)

// KafkaProducer is a telemetry.EventEmitter writing JSON events to one topic.
// Publishing is best-effort; callers log and move on.
type KafkaProducer struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaProducer creates a Kafka producer that writes events to the given topic.
// It returns (nil, nil) when brokers or topic are empty; a nil producer is a no-op.
// Call Close when shutting down.
func NewKafkaProducer(brokers []string, topic string, log *zap.Logger) (*KafkaProducer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, nil
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaProducer{writer: writer, topic: topic, logger: logger.OrNop(log)}, nil
}

// Emit serializes the event as JSON and writes it to the Kafka topic, keyed by resource id
// so events for one application stay ordered within a partition.
func (p *KafkaProducer) Emit(ctx context.Context, event *telemetry.Event) error {
	if p == nil || p.writer == nil || event == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	msg := kafka.Message{
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "source", Value: []byte(event.Source)},
		},
	}
	if event.ResourceID != "" {
		msg.Key = []byte(event.ResourceID)
	}
	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		p.logger.Warn("telemetry: kafka emit failed",
			zap.String("topic", p.topic),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Close flushes and closes the writer. A nil producer is a no-op.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
