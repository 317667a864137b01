// Package events publishes drained outbox events to an external stream for
// in-house consumers (analytics, the dashboard's activity feed). Webhook
// delivery to tenant endpoints does not go through here; the dispatcher
// worker reads its own delivery rows.
package events

import (
	"context"
	"encoding/json"
	"strconv"

	"umrah-backend/internal/models"

	"github.com/segmentio/kafka-go"
)

type Publisher interface {
	Publish(ctx context.Context, env *models.DomainEvent) error
	Close() error
}

// KafkaPublisher writes domain events to a Kafka topic, keyed by tenant so
// per-tenant ordering survives partitioning.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(broker, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(broker),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, env *models.DomainEvent) error {
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(env.TenantID, 10)),
		Value: value,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher is used when no broker is configured; the pipeline works
// fully without one.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *models.DomainEvent) error { return nil }
func (NopPublisher) Close() error                                       { return nil }
