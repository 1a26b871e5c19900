package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// TopicConfig describes one topic to ensure.
type TopicConfig struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	RetentionMs       int64
}

// DefaultTopicConfigs returns the monitor's output topics with 7-day
// retention.
func DefaultTopicConfigs() []TopicConfig {
	configs := make([]TopicConfig, 0, 3)
	for _, name := range OutputTopics() {
		configs = append(configs, TopicConfig{
			Name:              name,
			Partitions:        12,
			ReplicationFactor: 1,
			RetentionMs:       7 * 24 * 60 * 60 * 1000,
		})
	}
	return configs
}

// TopicManager administers bus topics.
type TopicManager struct {
	admin *kadm.Client
}

// NewTopicManager connects an admin client to the given brokers.
func NewTopicManager(brokers []string) (*TopicManager, error) {
	list := make([]string, len(brokers))
	for i, b := range brokers {
		list[i] = strings.TrimSpace(b)
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(list...))
	if err != nil {
		return nil, fmt.Errorf("create admin client: %w", err)
	}

	return &TopicManager{admin: kadm.NewClient(client)}, nil
}

// EnsureTopics creates any topic that does not already exist.
func (m *TopicManager) EnsureTopics(ctx context.Context, configs []TopicConfig) error {
	existing, err := m.admin.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}

	existingSet := make(map[string]bool)
	for _, t := range existing {
		existingSet[t.Topic] = true
	}

	for _, cfg := range configs {
		if existingSet[cfg.Name] {
			continue
		}
		if err := m.CreateTopic(ctx, cfg); err != nil {
			return fmt.Errorf("create topic %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// CreateTopic creates a single topic.
func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	retention := fmt.Sprintf("%d", cfg.RetentionMs)
	resp, err := m.admin.CreateTopics(ctx, cfg.Partitions, cfg.ReplicationFactor,
		map[string]*string{"retention.ms": &retention},
		cfg.Name,
	)
	if err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	for _, r := range resp {
		if r.Err != nil {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// ListTopics returns all topic names on the bus.
func (m *TopicManager) ListTopics(ctx context.Context) ([]string, error) {
	topics, err := m.admin.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	names := make([]string, 0, len(topics))
	for _, t := range topics {
		names = append(names, t.Topic)
	}
	return names, nil
}

// Close releases the admin client.
func (m *TopicManager) Close() {
	m.admin.Close()
}
