package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by symbol so one asset's events stay
// ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher builds an async writer; delivery failures are logged by
// the completion callback instead of blocking the trading loop.
func NewKafkaPublisher(brokers []string, topic string, log *zap.SugaredLogger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
			BatchTimeout: 10 * time.Millisecond,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					log.Errorw("kafka_publish_failed", "messages", len(messages), "err", err)
				}
			},
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Symbol),
		Value: value,
		Time:  ev.Time,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
