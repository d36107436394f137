package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/walletwatch/internal/core/domain"
	"github.com/vietddude/walletwatch/internal/infra/chain/evm"
	"github.com/vietddude/walletwatch/internal/infra/rpc"
	"github.com/vietddude/walletwatch/internal/infra/rpc/routing"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	if c.Notify.Cooldown == 0 {
		c.Notify.Cooldown = 5 * time.Minute
	}
	if c.Schedule.Pass == "" {
		c.Schedule.Pass = "@every 15s"
	}
	if c.Schedule.Sweep == "" {
		c.Schedule.Sweep = "@every 5m"
	}
	if c.Schedule.ColdStats == "" {
		c.Schedule.ColdStats = "@every 1h"
	}
	if c.Schedule.PassTimeout == 0 {
		c.Schedule.PassTimeout = 5 * time.Minute
	}

	for i := range c.Chains {
		ch := &c.Chains[i]
		if ch.Type == "" {
			ch.Type = domain.ChainTypeEVM
		}
		if ch.BlockTime == 0 {
			ch.BlockTime = domain.DefaultBlockTime
		}
		if ch.SlowThreshold == 0 {
			ch.SlowThreshold = routing.DefaultSlowThreshold
		}
		if ch.CallTimeout == 0 {
			ch.CallTimeout = rpc.DefaultCallTimeout
		}
	}
}

// Validate checks cross-references between sections.
func (c *AppConfig) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendRedis, BackendBolt, BackendPostgres:
	default:
		return &domain.ConfigError{Field: "store.backend", Reason: "unknown backend " + c.Store.Backend}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return &domain.ConfigError{Field: "kafka.topic", Reason: "required when brokers are set"}
	}

	chains := make(map[domain.ChainID]bool, len(c.Chains))
	for _, ch := range c.Chains {
		if ch.ChainID == "" {
			return &domain.ConfigError{Field: "chains.id", Reason: "must not be empty"}
		}
		if chains[ch.ChainID] {
			return &domain.ConfigError{Field: "chains." + string(ch.ChainID), Reason: "duplicate chain"}
		}
		if ch.Type != domain.ChainTypeEVM {
			return &domain.ConfigError{Field: "chains." + string(ch.ChainID) + ".type", Reason: "unsupported chain type " + string(ch.Type)}
		}
		if len(ch.Endpoints) == 0 {
			return &domain.ConfigError{Field: "chains." + string(ch.ChainID) + ".endpoints", Reason: "at least one endpoint is required"}
		}
		chains[ch.ChainID] = true
	}

	for _, m := range c.Monitors {
		if !chains[m.Chain] {
			return &domain.ConfigError{Field: "monitors." + m.Currency + ".chain", Reason: "unknown chain " + string(m.Chain)}
		}
		if m.DeltaAmount != "" {
			if _, err := decimal.NewFromString(m.DeltaAmount); err != nil {
				return &domain.ConfigError{Field: "monitors." + m.Currency + ".delta_amount", Reason: err.Error()}
			}
		}
	}
	return nil
}

// Chain returns the config for id.
func (c *AppConfig) Chain(id domain.ChainID) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.ChainID == id {
			return ch, true
		}
	}
	return ChainConfig{}, false
}

// EndpointURLs returns the configured endpoint priority list per chain.
func (c *AppConfig) EndpointURLs() map[domain.ChainID][]string {
	out := make(map[domain.ChainID][]string, len(c.Chains))
	for _, ch := range c.Chains {
		out[ch.ChainID] = append([]string(nil), ch.Endpoints...)
	}
	return out
}

// MonitorConfigs converts the monitors section into domain configs, filling
// block time and address validation from the chain.
func (c *AppConfig) MonitorConfigs() ([]domain.MonitorConfig, error) {
	out := make([]domain.MonitorConfig, 0, len(c.Monitors))
	for _, m := range c.Monitors {
		ch, ok := c.Chain(m.Chain)
		if !ok {
			return nil, &domain.ConfigError{Field: "monitors." + m.Currency + ".chain", Reason: "unknown chain " + string(m.Chain)}
		}
		delta := decimal.Zero
		if m.DeltaAmount != "" {
			var err error
			if delta, err = decimal.NewFromString(m.DeltaAmount); err != nil {
				return nil, &domain.ConfigError{Field: "monitors." + m.Currency + ".delta_amount", Reason: err.Error()}
			}
		}
		mc := domain.MonitorConfig{
			Currency:            m.Currency,
			Chain:               m.Chain,
			Kind:                m.Kind,
			ContractAddress:     m.ContractAddress,
			Decimals:            m.Decimals,
			SafeAddress:         m.SafeAddress,
			AccumulationTimeout: m.AccumulationTimeout,
			DeltaAmount:         delta,
			OffsetBlocks:        m.OffsetBlocks,
			OffsetSeconds:       m.OffsetSeconds,
			BlockTime:           ch.BlockTime,
			DefaultWindow:       m.DefaultWindow,
			MaxLogRange:         m.MaxLogRange,
			MaxPassBlocks:       m.MaxPassBlocks,
			BlocksDiffAlert:     m.BlocksDiffAlert,
		}
		if ch.Type == domain.ChainTypeEVM {
			mc.ValidateAddress = evm.IsAddress
		}
		out = append(out, mc)
	}
	return out, nil
}
