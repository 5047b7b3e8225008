package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// Broker publishes device-bound payloads to a named topic. Delivery is
// at-least-once at best and never retained: a device connecting after the
// event will not replay it.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// DeviceTopic addresses the status channel of one passenger's device.
func DeviceTopic(passengerID uint) string {
	return fmt.Sprintf("devices/%d/status", passengerID)
}

// RedisBroker publishes over Redis pub/sub. This is the default transport;
// it matches the no-retention requirement natively.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, topic, payload).Err()
}

// KafkaBroker publishes device messages to per-device Kafka topics with
// acknowledged writes, for deployments that need at-least-once delivery.
type KafkaBroker struct {
	writer *kafka.Writer
}

func NewKafkaBroker(brokers []string) *KafkaBroker {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
	}
	return &KafkaBroker{writer: w}
}

func (b *KafkaBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	// Kafka topic names cannot contain slashes.
	name := strings.ReplaceAll(topic, "/", ".")
	return b.writer.WriteMessages(ctx, kafka.Message{
		Topic: name,
		Key:   []byte(name),
		Value: payload,
	})
}

func (b *KafkaBroker) Close() error {
	if b.writer == nil {
		return nil
	}
	return b.writer.Close()
}
