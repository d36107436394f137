package config

import (
	"time"

	"github.com/vietddude/walletwatch/internal/core/domain"
	"github.com/vietddude/walletwatch/internal/indexing/emitter"
	redisclient "github.com/vietddude/walletwatch/internal/infra/redis"
	"github.com/vietddude/walletwatch/internal/infra/storage/bolt"
	"github.com/vietddude/walletwatch/internal/infra/storage/postgres"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logging  LoggingConfig       `yaml:"logging"`
	Store    StoreConfig         `yaml:"store"`
	Redis    redisclient.Config  `yaml:"redis"`
	Bolt     bolt.Config         `yaml:"bolt"`
	Database postgres.Config     `yaml:"database"`
	Kafka    emitter.KafkaConfig `yaml:"kafka"`
	Notify   NotifyConfig        `yaml:"notify"`
	Schedule ScheduleConfig      `yaml:"schedule"`
	Chains   []ChainConfig       `yaml:"chains"`
	Monitors []MonitorConfig     `yaml:"monitors"`
	// Addresses are static deposit addresses per currency, merged into the store at startup.
	Addresses map[string][]string `yaml:"addresses"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// StoreConfig selects where shared state and tracked addresses live.
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory, redis, bolt, postgres
}

// NotifyConfig holds operator notification channels.
type NotifyConfig struct {
	Cooldown time.Duration  `yaml:"cooldown"`
	Telegram TelegramConfig `yaml:"telegram"`
	Webhook  WebhookConfig  `yaml:"webhook"`
}

type TelegramConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type WebhookConfig struct {
	URL string `yaml:"url"`
}

// ScheduleConfig holds cron specs for the periodic jobs.
type ScheduleConfig struct {
	Pass        string        `yaml:"pass"`
	Sweep       string        `yaml:"sweep"`
	ColdStats   string        `yaml:"cold_stats"`
	PassTimeout time.Duration `yaml:"pass_timeout"`
}

// ChainConfig holds settings for a specific blockchain.
type ChainConfig struct {
	ChainID       domain.ChainID   `yaml:"id"`
	Type          domain.ChainType `yaml:"type"`
	BlockTime     time.Duration    `yaml:"block_time"`
	Endpoints     []string         `yaml:"endpoints"`
	SlowThreshold time.Duration    `yaml:"slow_threshold"`
	CallTimeout   time.Duration    `yaml:"call_timeout"`
	RateLimit     float64          `yaml:"rate_limit"` // requests per second per endpoint, 0 = unlimited
	Burst         int              `yaml:"burst"`
}

// MonitorConfig is the YAML form of domain.MonitorConfig.
type MonitorConfig struct {
	Currency            string             `yaml:"currency"`
	Chain               domain.ChainID     `yaml:"chain"`
	Kind                domain.MonitorKind `yaml:"kind"`
	ContractAddress     string             `yaml:"contract_address"`
	Decimals            int32              `yaml:"decimals"`
	SafeAddress         string             `yaml:"safe_address"`
	AccumulationTimeout time.Duration      `yaml:"accumulation_timeout"`
	DeltaAmount         string             `yaml:"delta_amount"`
	OffsetBlocks        uint64             `yaml:"offset_blocks"`
	OffsetSeconds       time.Duration      `yaml:"offset_seconds"`
	DefaultWindow       uint64             `yaml:"default_window"`
	MaxLogRange         uint64             `yaml:"max_log_range"`
	MaxPassBlocks       uint64             `yaml:"max_pass_blocks"`
	BlocksDiffAlert     uint64             `yaml:"blocks_diff_alert"`
}
