// Package cursor tracks the scan checkpoint for each (chain, currency) pair.
//
// # Purpose
//
// The checkpoint is the bookmark of the monitoring pass: the highest block
// whose transfers were all handed to the emitter. It is the inclusive lower
// bound of the next pass: that block is scanned again, so a restart never
// skips blocks and consumers dedupe the boundary by event key.
//
// # Key Features
//
// Monotonic - Advance never lowers a checkpoint. A stale writer that lost a
// race against a newer pass is a no-op, not an error.
//
// Shared - Checkpoints live in the storage.StateStore next to the endpoint
// order, so several processes can run passes for the same chain.
//
// Administrative reset - Reset is the one operation allowed to move a
// checkpoint backwards, and it is only exposed through the CLI.
//
// # Quick Start
//
//	manager := cursor.NewManager(store)
//
//	cp, ok, _ := manager.Get(ctx, "ETX", "USDT")
//	if !ok {
//	    // first run, scan the fallback window
//	}
//	manager.Advance(ctx, "ETX", "USDT", 1200) // after the pass succeeded
//
// # Package Structure
//
//   - manager.go - Manager with CAS-based Advance, Reset and lag helpers
//   - metrics.go - per-currency throughput collector
package cursor

import (
	"github.com/vietddude/walletwatch/internal/infra/storage"
)

// NewManager creates a checkpoint manager on top of the shared state store.
func NewManager(store storage.StateStore) *DefaultManager {
	return &DefaultManager{
		store:     store,
		collector: make(map[string]*MetricsCollector),
		now:       timeNow,
	}
}

// NewMetricsCollector creates a new metrics collector with the given window size.
func NewMetricsCollector(windowSize int) *MetricsCollector {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &MetricsCollector{
		windowSize: windowSize,
		passes:     make([]passRecord, 0, windowSize),
	}
}
