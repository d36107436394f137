package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// balanceOfSelector is the ERC20 balanceOf(address) method id.
var balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]

// GetBalance returns the native balance of addr at the latest block.
func (a *EVMAdapter) GetBalance(ctx context.Context, addr string) (*big.Int, error) {
	var bal hexutil.Big
	if err := a.client.Call(ctx, "eth_getBalance", []any{addr, "latest"}, &bal); err != nil {
		return nil, fmt.Errorf("eth_getBalance failed: %w", err)
	}
	return bal.ToInt(), nil
}

// GetTokenBalance returns the ERC20 balance of holder on contract.
func (a *EVMAdapter) GetTokenBalance(ctx context.Context, contract, holder string) (*big.Int, error) {
	if !IsAddress(holder) {
		return nil, fmt.Errorf("invalid holder address %q", holder)
	}
	data := make([]byte, 0, 36)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(holder).Bytes(), 32)...)

	call := map[string]any{"to": contract, "data": hexutil.Encode(data)}
	var out hexutil.Bytes
	if err := a.client.Call(ctx, "eth_call", []any{call, "latest"}, &out); err != nil {
		return nil, fmt.Errorf("eth_call balanceOf failed: %w", err)
	}
	if len(out) == 0 {
		return new(big.Int), nil
	}
	return new(big.Int).SetBytes(out), nil
}
