package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is one consumed record.
type Message struct {
	Topic   string
	Key     string
	Payload []byte
	Offset  int64
}

// Consumer tails bus topics from a chosen offset.
type Consumer struct {
	client *kgo.Client
}

// NewConsumer subscribes to topics starting at fromOffset; a negative
// offset means the current end (new records only).
func NewConsumer(brokers []string, topics []string, fromOffset int64) (*Consumer, error) {
	list := make([]string, len(brokers))
	for i, b := range brokers {
		list[i] = strings.TrimSpace(b)
	}

	offset := kgo.NewOffset().AtEnd()
	if fromOffset >= 0 {
		offset = kgo.NewOffset().At(fromOffset)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(list...),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(offset),
	)
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	return &Consumer{client: client}, nil
}

// Poll blocks for the next batch of records.
func (c *Consumer) Poll(ctx context.Context) ([]Message, error) {
	fetches := c.client.PollFetches(ctx)
	if errs := fetches.Errors(); len(errs) > 0 {
		return nil, errs[0].Err
	}

	var messages []Message
	fetches.EachRecord(func(r *kgo.Record) {
		messages = append(messages, Message{
			Topic:   r.Topic,
			Key:     string(r.Key),
			Payload: r.Value,
			Offset:  r.Offset,
		})
	})
	return messages, nil
}

// Close releases the consumer.
func (c *Consumer) Close() {
	c.client.Close()
}
