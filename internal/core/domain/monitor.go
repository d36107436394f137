package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MonitorKind says how transfers of a currency are discovered.
type MonitorKind string

const (
	// KindNative currencies are scanned block by block from transaction values.
	KindNative MonitorKind = "native"
	// KindToken currencies are scanned from ERC20 Transfer logs of one contract.
	KindToken MonitorKind = "token"
)

// Defaults applied to a MonitorConfig when fields are left zero.
const (
	DefaultWindow          uint64 = 1000
	DefaultMaxLogRange     uint64 = 1000
	DefaultBlocksDiffAlert uint64 = 50
)

// AddressValidator reports whether a string is a well-formed address for a currency.
type AddressValidator func(addr string) bool

// LatestBlockFunc overrides how the chain head is obtained for a currency.
type LatestBlockFunc func(ctx context.Context) (uint64, error)

// MonitorConfig is the immutable per-currency monitoring configuration.
type MonitorConfig struct {
	Currency        string
	Chain           ChainID
	Kind            MonitorKind
	ContractAddress string
	Decimals        int32
	SafeAddress     string

	AccumulationTimeout time.Duration
	DeltaAmount         decimal.Decimal

	OffsetBlocks  uint64
	OffsetSeconds time.Duration
	BlockTime     time.Duration

	DefaultWindow   uint64
	MaxLogRange     uint64
	MaxPassBlocks   uint64
	BlocksDiffAlert uint64

	ValidateAddress AddressValidator
	LatestBlock     LatestBlockFunc
}

// WithDefaults fills zero-valued tunables.
func (c MonitorConfig) WithDefaults() MonitorConfig {
	if c.DefaultWindow == 0 {
		c.DefaultWindow = DefaultWindow
	}
	if c.MaxLogRange == 0 {
		c.MaxLogRange = DefaultMaxLogRange
	}
	if c.BlocksDiffAlert == 0 {
		c.BlocksDiffAlert = DefaultBlocksDiffAlert
	}
	if c.BlockTime <= 0 {
		c.BlockTime = DefaultBlockTime
	}
	return c
}

// ConfirmationOffset converts both offsets into a number of blocks behind head.
func (c MonitorConfig) ConfirmationOffset() uint64 {
	offset := c.OffsetBlocks
	if c.OffsetSeconds > 0 && c.BlockTime > 0 {
		offset += uint64(c.OffsetSeconds / c.BlockTime)
	}
	return offset
}

// Validate rejects configs that cannot be scanned.
func (c MonitorConfig) Validate() error {
	if c.Currency == "" {
		return &ConfigError{Field: "currency", Reason: "must not be empty"}
	}
	if c.Chain == "" {
		return &ConfigError{Field: c.Currency + ".chain", Reason: "must not be empty"}
	}
	switch c.Kind {
	case KindNative:
	case KindToken:
		if c.ContractAddress == "" {
			return &ConfigError{Field: c.Currency + ".contract_address", Reason: "required for token currencies"}
		}
		if c.ValidateAddress != nil && !c.ValidateAddress(c.ContractAddress) {
			return &ConfigError{Field: c.Currency + ".contract_address", Reason: "malformed address"}
		}
	default:
		return &ConfigError{Field: c.Currency + ".kind", Reason: "unknown kind " + string(c.Kind)}
	}
	if c.Decimals < 0 {
		return &ConfigError{Field: c.Currency + ".decimals", Reason: "must not be negative"}
	}
	if c.SafeAddress != "" && c.ValidateAddress != nil && !c.ValidateAddress(c.SafeAddress) {
		return &ConfigError{Field: c.Currency + ".safe_address", Reason: "malformed address"}
	}
	return nil
}
