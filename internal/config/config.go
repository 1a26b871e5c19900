// Package config loads the monitor configuration: coded defaults, then an
// optional YAML file, then flag overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config is the full monitor configuration.
type Config struct {
	Chain     ChainConfig     `yaml:"chain"`
	Broker    BrokerConfig    `yaml:"broker"`
	Cache     CacheConfig     `yaml:"cache"`
	Contracts ContractsConfig `yaml:"contracts"`
}

// ChainConfig holds the streaming endpoint and connection lifecycle tuning.
type ChainConfig struct {
	// WSURL is the websocket RPC endpoint.
	WSURL string `yaml:"ws_url"`

	ProbeInterval  time.Duration `yaml:"probe_interval"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	MaxReconnects  int           `yaml:"max_reconnects"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// BrokerConfig holds the bus connection settings.
type BrokerConfig struct {
	Addresses []string `yaml:"addresses"`
}

// CacheConfig tunes the block metadata cache.
type CacheConfig struct {
	Capacity   int           `yaml:"capacity"`
	MaxRetries int           `yaml:"max_retries"`
	RetryBase  time.Duration `yaml:"retry_base"`
	RetryMax   time.Duration `yaml:"retry_max"`
}

// ContractsConfig names the monitored contracts.
type ContractsConfig struct {
	ManagerV1 string   `yaml:"manager_v1"`
	ManagerV2 string   `yaml:"manager_v2"`
	Pairs     []string `yaml:"pairs"`
}

// Load builds the configuration. The file is optional; wsURL and brokers
// override it when non-empty.
func Load(path, wsURL, brokers string) (*Config, error) {
	cfg := &Config{
		Chain: ChainConfig{
			ProbeInterval:  30 * time.Second,
			ConfirmTimeout: 10 * time.Second,
			MaxReconnects:  10,
			ReconnectDelay: 5 * time.Second,
		},
		Broker: BrokerConfig{
			Addresses: []string{"localhost:9092"},
		},
		Cache: CacheConfig{
			Capacity:   100,
			MaxRetries: 3,
			RetryBase:  time.Second,
			RetryMax:   5 * time.Second,
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if wsURL != "" {
		cfg.Chain.WSURL = wsURL
	}
	if brokers != "" {
		cfg.Broker.Addresses = strings.Split(brokers, ",")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Chain.WSURL == "" {
		return fmt.Errorf("chain ws_url is required")
	}
	if c.Contracts.ManagerV1 == "" && c.Contracts.ManagerV2 == "" {
		return fmt.Errorf("at least one manager contract address is required")
	}
	for _, addr := range []string{c.Contracts.ManagerV1, c.Contracts.ManagerV2} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid manager address %q", addr)
		}
	}
	for _, addr := range c.Contracts.Pairs {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid pair address %q", addr)
		}
	}
	return nil
}

// PairAddresses returns the watched pairs as parsed addresses.
func (c *Config) PairAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.Contracts.Pairs))
	for _, addr := range c.Contracts.Pairs {
		out = append(out, common.HexToAddress(addr))
	}
	return out
}
