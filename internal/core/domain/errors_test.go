package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorsMatchSentinels(t *testing.T) {
	transport := &TransportError{Endpoint: "http://a", Method: "eth_blockNumber", Err: context.DeadlineExceeded}
	unavailable := &ChainUnavailableError{Chain: ChainETX, Err: transport}
	wrapped := fmt.Errorf("scan: %w", &BlockFetchError{Chain: ChainETX, Block: 7, Err: unavailable})

	assert.ErrorIs(t, wrapped, ErrBlockFetch)
	assert.ErrorIs(t, wrapped, ErrChainUnavailable)
	assert.ErrorIs(t, wrapped, ErrTransport)
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
	assert.NotErrorIs(t, wrapped, ErrLogQuery)

	var bf *BlockFetchError
	assert.True(t, errors.As(wrapped, &bf))
	assert.Equal(t, uint64(7), bf.Block)

	assert.ErrorIs(t, &UnknownCurrencyError{Currency: "XYZ"}, ErrUnknownCurrency)
	assert.ErrorIs(t, &ConfigError{Field: "x", Reason: "y"}, ErrConfig)
}

func TestTransferEventID(t *testing.T) {
	native := TransferEvent{TxHash: "0xabc", LogIndex: NativeLogIndex, Direction: DirectionIn}
	token := TransferEvent{TxHash: "0xabc", LogIndex: 4, Direction: DirectionOut}

	assert.Equal(t, "0xabc", native.ID())
	assert.Equal(t, "0xabc:4", token.ID())
	assert.Equal(t, "0xabc:4:out", token.Key())
}

func TestMonitorConfigOffset(t *testing.T) {
	cfg := MonitorConfig{OffsetBlocks: 3, OffsetSeconds: 10 * time.Second, BlockTime: 2 * time.Second}
	assert.Equal(t, uint64(8), cfg.ConfirmationOffset())

	cfg = MonitorConfig{Currency: "USDT", Chain: ChainETX, Kind: KindToken}
	assert.ErrorIs(t, cfg.Validate(), ErrConfig)

	def := MonitorConfig{}.WithDefaults()
	assert.Equal(t, DefaultWindow, def.DefaultWindow)
	assert.Equal(t, DefaultMaxLogRange, def.MaxLogRange)
	assert.Equal(t, DefaultBlockTime, def.BlockTime)
}

func TestAddressSet(t *testing.T) {
	set := NewAddressSet("0xABCdef", "", " 0x01 ")
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains("0xabcDEF"))
	assert.True(t, set.Contains("0x01"))
	assert.False(t, set.Contains(""))
}
