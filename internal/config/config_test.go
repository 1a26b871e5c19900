package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
chain:
  ws_url: wss://node.example/ws
  probe_interval: 15s
  max_reconnects: 4
broker:
  addresses: ["kafka-1:9092", "kafka-2:9092"]
cache:
  capacity: 50
contracts:
  manager_v1: "0x1110000000000000000000000000000000000001"
  manager_v2: "0x2220000000000000000000000000000000000002"
  pairs:
    - "0x3330000000000000000000000000000000000003"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FileWithDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig), "", "")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Chain.WSURL != "wss://node.example/ws" {
		t.Errorf("ws_url = %q", cfg.Chain.WSURL)
	}
	if cfg.Chain.ProbeInterval != 15*time.Second {
		t.Errorf("probe_interval = %v", cfg.Chain.ProbeInterval)
	}
	if cfg.Chain.MaxReconnects != 4 {
		t.Errorf("max_reconnects = %d", cfg.Chain.MaxReconnects)
	}
	// Untouched settings keep their defaults.
	if cfg.Chain.ConfirmTimeout != 10*time.Second {
		t.Errorf("confirm_timeout = %v, want default 10s", cfg.Chain.ConfirmTimeout)
	}
	if cfg.Chain.ReconnectDelay != 5*time.Second {
		t.Errorf("reconnect_delay = %v, want default 5s", cfg.Chain.ReconnectDelay)
	}
	if cfg.Cache.Capacity != 50 {
		t.Errorf("cache capacity = %d", cfg.Cache.Capacity)
	}
	if cfg.Cache.MaxRetries != 3 {
		t.Errorf("cache max_retries = %d, want default", cfg.Cache.MaxRetries)
	}
	if len(cfg.Broker.Addresses) != 2 {
		t.Errorf("broker addresses = %v", cfg.Broker.Addresses)
	}
	if len(cfg.PairAddresses()) != 1 {
		t.Errorf("pairs = %v", cfg.PairAddresses())
	}
}

func TestLoad_FlagOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig), "wss://other.example", "one:9092,two:9092,three:9092")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Chain.WSURL != "wss://other.example" {
		t.Errorf("ws_url = %q, want flag override", cfg.Chain.WSURL)
	}
	if len(cfg.Broker.Addresses) != 3 {
		t.Errorf("broker addresses = %v, want flag override", cfg.Broker.Addresses)
	}
}

func TestLoad_RequiresEndpoint(t *testing.T) {
	_, err := Load("", "", "")
	if err == nil || !strings.Contains(err.Error(), "ws_url") {
		t.Errorf("err = %v, want missing ws_url", err)
	}
}

func TestLoad_RejectsBadAddress(t *testing.T) {
	bad := strings.Replace(sampleConfig,
		"0x1110000000000000000000000000000000000001", "not-an-address", 1)
	_, err := Load(writeConfig(t, bad), "", "")
	if err == nil || !strings.Contains(err.Error(), "invalid manager address") {
		t.Errorf("err = %v, want invalid address", err)
	}
}

func TestLoad_RequiresAManager(t *testing.T) {
	_, err := Load("", "wss://node.example", "")
	if err == nil || !strings.Contains(err.Error(), "manager contract") {
		t.Errorf("err = %v, want missing manager", err)
	}
}
