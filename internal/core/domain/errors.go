package domain

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrConfig           = errors.New("invalid configuration")
	ErrUnknownCurrency  = errors.New("unknown currency")
	ErrTransport        = errors.New("rpc transport failure")
	ErrRPC              = errors.New("rpc error response")
	ErrChainUnavailable = errors.New("chain unavailable")
	ErrBlockFetch       = errors.New("block fetch failed")
	ErrLogQuery         = errors.New("log query failed")
	ErrDecode           = errors.New("decode failed")
	ErrStateContention  = errors.New("shared state contention")
)

// ConfigError is raised at construction time, never mid-scan.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// UnknownCurrencyError is returned when a currency has no registered config.
type UnknownCurrencyError struct {
	Currency string
}

func (e *UnknownCurrencyError) Error() string {
	return fmt.Sprintf("unknown currency %q", e.Currency)
}

func (e *UnknownCurrencyError) Is(target error) bool { return target == ErrUnknownCurrency }

// TransportError covers connection failures, timeouts, throttling and malformed responses.
type TransportError struct {
	Endpoint string
	Method   string
	Status   int
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: http %d: %v", e.Endpoint, e.Method, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Endpoint, e.Method, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// RPCError is a well-formed JSON-RPC error object returned by a node.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (e *RPCError) Is(target error) bool { return target == ErrRPC }

// ChainUnavailableError means the retry after rotation also failed.
type ChainUnavailableError struct {
	Chain ChainID
	Err   error
}

func (e *ChainUnavailableError) Error() string {
	return fmt.Sprintf("chain %s unavailable: %v", e.Chain, e.Err)
}

func (e *ChainUnavailableError) Unwrap() error { return e.Err }

func (e *ChainUnavailableError) Is(target error) bool { return target == ErrChainUnavailable }

// BlockFetchError aborts a native scan at Block.
type BlockFetchError struct {
	Chain ChainID
	Block uint64
	Err   error
}

func (e *BlockFetchError) Error() string {
	return fmt.Sprintf("fetch %s block %d: %v", e.Chain, e.Block, e.Err)
}

func (e *BlockFetchError) Unwrap() error { return e.Err }

func (e *BlockFetchError) Is(target error) bool { return target == ErrBlockFetch }

// LogQueryError aborts a token scan at the failing sub-range.
type LogQueryError struct {
	Chain    ChainID
	Contract string
	From, To uint64
	Err      error
}

func (e *LogQueryError) Error() string {
	return fmt.Sprintf("query %s logs of %s [%d,%d]: %v", e.Chain, e.Contract, e.From, e.To, e.Err)
}

func (e *LogQueryError) Unwrap() error { return e.Err }

func (e *LogQueryError) Is(target error) bool { return target == ErrLogQuery }

// DecodeError marks a single log entry that could not be decoded. Scanners skip it.
type DecodeError struct {
	TxHash string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.TxHash == "" {
		return "decode log: " + e.Reason
	}
	return fmt.Sprintf("decode log in %s: %s", e.TxHash, e.Reason)
}

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
