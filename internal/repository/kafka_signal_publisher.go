package repository

import (
	"context"

	"AlphaPull/internal/domain/models"
	appkafka "AlphaPull/pkg/kafka"
)

// KafkaSignalPublisher pushes generated signals onto a Kafka topic for
// downstream consumers. Messages are keyed by symbol so one symbol's
// signals stay ordered within a partition.
type KafkaSignalPublisher struct {
	producer *appkafka.Producer
	topic    string
}

func NewKafkaSignalPublisher(producer *appkafka.Producer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) PublishSignal(ctx context.Context, sig models.Signal) error {
	return p.producer.Publish(ctx, p.topic, []byte(sig.Symbol), sig)
}

func (p *KafkaSignalPublisher) Close() error {
	return p.producer.Close()
}
