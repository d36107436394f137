package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is relative to the tracked address.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// NativeLogIndex marks events that come from a transaction value rather than a log.
const NativeLogIndex = -1

// TransferEvent is a value movement touching a tracked address.
type TransferEvent struct {
	Chain          ChainID         `json:"chain"`
	Currency       string          `json:"currency"`
	Kind           MonitorKind     `json:"kind"`
	TxHash         string          `json:"tx_hash"`
	LogIndex       int64           `json:"log_index"`
	BlockNumber    uint64          `json:"block_number"`
	BlockHash      string          `json:"block_hash"`
	Timestamp      time.Time       `json:"timestamp"`
	TrackedAddress string          `json:"tracked_address"`
	Counterparty   string          `json:"counterparty"`
	Direction      Direction       `json:"direction"`
	Amount         *big.Int        `json:"-"`
	Value          decimal.Decimal `json:"value"`
	Contract       string          `json:"contract,omitempty"`
}

// ID identifies the on-chain occurrence. Native events use the tx hash and
// token events use "txhash:logindex". Both directions of a self-transfer share it.
func (e TransferEvent) ID() string {
	if e.LogIndex == NativeLogIndex {
		return e.TxHash
	}
	return fmt.Sprintf("%s:%d", e.TxHash, e.LogIndex)
}

// Key distinguishes the two directional events of a single occurrence.
func (e TransferEvent) Key() string {
	return e.ID() + ":" + string(e.Direction)
}

// ScaleAmount converts smallest-unit amounts into a decimal value.
func ScaleAmount(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}
