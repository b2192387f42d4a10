package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
)

// KafkaProvider publishes alerts to a topic for downstream delivery
type KafkaProvider struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaProvider connects a synchronous producer to brokers
func NewKafkaProvider(brokers []string, topic string) (*KafkaProvider, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, fmt.Errorf("kafka brokers and topic are required")
	}

	cfg := sarama.NewConfig()
	cfg.ClientID = "checkpulse-alerts"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaProviderWithProducer(producer, topic), nil
}

// NewKafkaProviderWithProducer wraps an existing producer
func NewKafkaProviderWithProducer(producer sarama.SyncProducer, topic string) *KafkaProvider {
	return &KafkaProvider{producer: producer, topic: topic}
}

func (k *KafkaProvider) Name() string {
	return "kafka"
}

// Send publishes the alert keyed by recipient so one user's alerts stay ordered
func (k *KafkaProvider) Send(ctx context.Context, message *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     k.topic,
		Key:       sarama.StringEncoder(message.Recipient),
		Value:     sarama.ByteEncoder(data),
		Timestamp: message.Time,
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

func (k *KafkaProvider) Close() error {
	return k.producer.Close()
}
