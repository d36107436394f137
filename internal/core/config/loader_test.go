package config

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

const sampleConfig = `
store:
  backend: redis
redis:
  url: ${TEST_REDIS_URL}
chains:
  - id: ETX
    block_time: 1s
    endpoints:
      - http://rpc-a.local
      - http://rpc-b.local
    rate_limit: 20
monitors:
  - currency: ETX
    chain: ETX
    kind: native
    decimals: 18
    safe_address: "0x00000000000000000000000000000000000000ee"
    delta_amount: "0.5"
    accumulation_timeout: 1h
    offset_seconds: 10s
  - currency: USDT
    chain: ETX
    kind: token
    contract_address: "0x00000000000000000000000000000000000000cc"
    decimals: 6
    max_log_range: 500
addresses:
  USDT:
    - "0x00000000000000000000000000000000000000aa"
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	if _, err := tmpFile.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tmpFile.Close()
	return tmpFile.Name()
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("TEST_REDIS_URL", "redis://localhost:6380/2")

	cfg, err := Load(writeTemp(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Redis.URL != "redis://localhost:6380/2" {
		t.Errorf("Expected URL redis://localhost:6380/2, got %s", cfg.Redis.URL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeTemp(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	ch, ok := cfg.Chain(domain.ChainETX)
	if !ok {
		t.Fatal("chain ETX missing")
	}
	if ch.SlowThreshold != 2800*time.Millisecond {
		t.Errorf("expected default slow threshold 2.8s, got %s", ch.SlowThreshold)
	}
	if ch.CallTimeout != 10*time.Second {
		t.Errorf("expected default call timeout 10s, got %s", ch.CallTimeout)
	}
	if ch.Type != domain.ChainTypeEVM {
		t.Errorf("expected evm chain type, got %s", ch.Type)
	}
	if cfg.Schedule.Pass == "" {
		t.Error("expected default pass schedule")
	}
}

func TestMonitorConfigs(t *testing.T) {
	cfg, err := Load(writeTemp(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	monitors, err := cfg.MonitorConfigs()
	if err != nil {
		t.Fatalf("MonitorConfigs failed: %v", err)
	}
	if len(monitors) != 2 {
		t.Fatalf("expected 2 monitors, got %d", len(monitors))
	}

	etx := monitors[0]
	if etx.BlockTime != time.Second {
		t.Errorf("expected block time from chain, got %s", etx.BlockTime)
	}
	if got := etx.ConfirmationOffset(); got != 10 {
		t.Errorf("expected offset of 10 blocks, got %d", got)
	}
	if etx.DeltaAmount.String() != "0.5" {
		t.Errorf("expected delta 0.5, got %s", etx.DeltaAmount)
	}
	if etx.ValidateAddress == nil || etx.ValidateAddress("0x123") {
		t.Error("expected EVM address validation")
	}
	if monitors[1].MaxLogRange != 500 {
		t.Errorf("expected max log range 500, got %d", monitors[1].MaxLogRange)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "store:\n  backend: etcd\n"},
		{"chain without endpoints", "chains:\n  - id: ETX\n"},
		{"duplicate chain", "chains:\n  - id: ETX\n    endpoints: [http://a]\n  - id: ETX\n    endpoints: [http://b]\n"},
		{"monitor on unknown chain", "monitors:\n  - currency: ETH\n    chain: ETH\n    kind: native\n"},
		{"kafka without topic", "kafka:\n  brokers: [localhost:9092]\n"},
		{"bad delta", "chains:\n  - id: ETX\n    endpoints: [http://a]\nmonitors:\n  - currency: ETX\n    chain: ETX\n    kind: native\n    delta_amount: lots\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, domain.ErrConfig) {
				t.Errorf("expected config error, got %v", err)
			}
		})
	}
}
