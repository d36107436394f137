package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	logger "log/slog"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

var errTopicLength = errors.New("topic is not 32 bytes")

// Caller is the chain client surface the adapter needs.
type Caller interface {
	Call(ctx context.Context, method string, params []any, result any) error
}

// EVMAdapter turns raw JSON-RPC calls into typed block and log queries.
type EVMAdapter struct {
	chainID domain.ChainID
	client  Caller
	log     *logger.Logger
}

func NewEVMAdapter(chainID domain.ChainID, client Caller) *EVMAdapter {
	return &EVMAdapter{
		chainID: chainID,
		client:  client,
		log:     logger.Default().With("chain", chainID),
	}
}

func (a *EVMAdapter) GetChainID() domain.ChainID {
	return a.chainID
}

func (a *EVMAdapter) GetLatestBlock(ctx context.Context) (uint64, error) {
	var height hexutil.Uint64
	if err := a.client.Call(ctx, "eth_blockNumber", nil, &height); err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}
	return uint64(height), nil
}

// GetBlock fetches a block with full transactions. It returns nil, nil when
// the node does not know the block yet.
func (a *EVMAdapter) GetBlock(ctx context.Context, blockNumber uint64) (*Block, error) {
	var block *Block
	params := []any{hexutil.EncodeUint64(blockNumber), true}
	if err := a.client.Call(ctx, "eth_getBlockByNumber", params, &block); err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber failed: %w", err)
	}
	if block == nil {
		a.log.Debug("Block not available yet", "block", blockNumber)
	}
	return block, nil
}

// GetLogs returns the raw log entries matching filter. Entries are decoded
// individually by DecodeTransferLog.
func (a *EVMAdapter) GetLogs(ctx context.Context, filter LogFilter) ([]json.RawMessage, error) {
	var logs []json.RawMessage
	if err := a.client.Call(ctx, "eth_getLogs", filter.params(), &logs); err != nil {
		return nil, fmt.Errorf("eth_getLogs failed: %w", err)
	}
	return logs, nil
}
