// Package bus provides the message-bus capability: a keyed publisher for
// the canonical event topics, topic administration, and the consumer side
// used by the tailing CLI.
package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Topic names for the three output channels.
const (
	TopicTokenCreated  = "token-created"
	TopicTokenTrade    = "token-trade"
	TopicTokenMigrated = "token-migrated"
)

// OutputTopics lists every topic the monitor publishes to.
func OutputTopics() []string {
	return []string{TopicTokenCreated, TopicTokenTrade, TopicTokenMigrated}
}

// Publisher publishes a keyed message to a named topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close()
}

// KafkaPublisher is the production Publisher on a franz-go client.
type KafkaPublisher struct {
	client *kgo.Client
}

// NewKafkaPublisher connects a producer to the given brokers.
func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	list := make([]string, len(brokers))
	for i, b := range brokers {
		list[i] = strings.TrimSpace(b)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(list...),
		kgo.MaxProduceRequestsInflightPerBroker(1),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordRetries(5),
	)
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}

	return &KafkaPublisher{client: client}, nil
}

// Publish produces one record synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}

	results := p.client.ProduceSync(ctx, record)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and releases the producer.
func (p *KafkaPublisher) Close() {
	p.client.Flush(context.Background())
	p.client.Close()
}
