package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hpungsan/seatwatch/internal/status"
)

// Kafka writes change messages to a topic, keyed by event URL.
type Kafka struct {
	writer    *kafka.Writer
	eventName string
	now       func() time.Time
}

// NewKafka creates a synchronous writer. No connection is made until the
// first message.
func NewKafka(brokers []string, topic, eventName string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic not configured")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Kafka{writer: w, eventName: eventName, now: time.Now}, nil
}

// Notify writes one message.
func (k *Kafka) Notify(ctx context.Context, event status.ChangeEvent, snap status.Snapshot) error {
	now := k.now()
	data, err := NewMessage(event, snap, k.eventName, now).Encode()
	if err != nil {
		return err
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(snap.EventURL),
		Value: data,
		Time:  now,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to kafka topic %s: %w", k.writer.Topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
