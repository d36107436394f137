// Package scanner turns block ranges into TransferEvents for tracked addresses.
//
// Both scanners are lazy: events are produced as the returned sequence is
// consumed, in ascending block order, and a failure is yielded once as the
// final element. Events already yielded stay valid after a failure.
package scanner

import (
	"context"
	"encoding/json"
	"iter"
	"time"

	"github.com/vietddude/walletwatch/internal/core/domain"
	"github.com/vietddude/walletwatch/internal/infra/chain/evm"
)

// Scanner produces transfer events for one currency over an inclusive block range.
type Scanner interface {
	Scan(ctx context.Context, cfg domain.MonitorConfig, tracked domain.AddressSet, from, to uint64) iter.Seq2[domain.TransferEvent, error]
}

// BlockSource fetches full blocks.
type BlockSource interface {
	GetBlock(ctx context.Context, blockNumber uint64) (*evm.Block, error)
}

// LogSource fetches raw log entries.
type LogSource interface {
	GetLogs(ctx context.Context, filter evm.LogFilter) ([]json.RawMessage, error)
}

func unixTime(ts uint64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(int64(ts), 0).UTC()
}

// directional emits the events a single movement produces for the tracked
// set: one "out" when the sender is tracked and one "in" when the receiver is.
func directional(base domain.TransferEvent, from, to string, tracked domain.AddressSet, yield func(domain.TransferEvent, error) bool) bool {
	if tracked.Contains(from) {
		ev := base
		ev.TrackedAddress = domain.NormalizeAddress(from)
		ev.Counterparty = domain.NormalizeAddress(to)
		ev.Direction = domain.DirectionOut
		if !yield(ev, nil) {
			return false
		}
	}
	if to != "" && tracked.Contains(to) {
		ev := base
		ev.TrackedAddress = domain.NormalizeAddress(to)
		ev.Counterparty = domain.NormalizeAddress(from)
		ev.Direction = domain.DirectionIn
		if !yield(ev, nil) {
			return false
		}
	}
	return true
}
