package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/roach88/tableside/internal/domain"
)

// KafkaPublisher writes events to a Kafka topic keyed by session id, so
// every event of one session lands on the same partition in seq order.
type KafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, evs []domain.SessionEvent) error {
	msgs, err := messages(evs)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// messages encodes events as Kafka messages.
func messages(evs []domain.SessionEvent) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		value, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.SessionID),
			Value: value,
			Time:  ev.CreatedAt,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(ev.Type)},
				{Key: "event-source", Value: []byte(ev.Source)},
				{Key: "location-id", Value: []byte(ev.LocationID)},
			},
		})
	}
	return msgs, nil
}

// LogPublisher writes events to a logger. It is used when no brokers are
// configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher logging at info level.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(ctx context.Context, evs []domain.SessionEvent) error {
	for _, ev := range evs {
		p.logger.InfoContext(ctx, "session event",
			"seq", ev.Seq,
			"session_id", ev.SessionID,
			"type", ev.Type,
			"source", ev.Source,
			"payload", string(ev.Payload),
		)
	}
	return nil
}

// Close implements Publisher.
func (p *LogPublisher) Close() error {
	return nil
}
