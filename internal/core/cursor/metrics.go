package cursor

import (
	"time"
)

// passRecord holds the checkpoint reached by one pass.
type passRecord struct {
	Block       uint64
	ProcessedAt time.Time
}

// Metrics holds checkpoint throughput data.
type Metrics struct {
	BlocksPerSecond float64
	LastBlock       uint64
	LastAdvanceAt   time.Time
	Passes          int
}

// MetricsCollector tracks checkpoint progress over a window of passes.
type MetricsCollector struct {
	windowSize int          // number of passes to track
	passes     []passRecord // ring buffer of pass records
}

// RecordPass records the checkpoint reached by a completed pass.
func (mc *MetricsCollector) RecordPass(block uint64, processedAt time.Time) {
	rec := passRecord{Block: block, ProcessedAt: processedAt}

	if len(mc.passes) >= mc.windowSize {
		// Shift elements left, drop oldest
		copy(mc.passes, mc.passes[1:])
		mc.passes[len(mc.passes)-1] = rec
	} else {
		mc.passes = append(mc.passes, rec)
	}
}

// GetMetrics returns current metrics.
func (mc *MetricsCollector) GetMetrics() Metrics {
	m := Metrics{Passes: len(mc.passes)}
	if len(mc.passes) == 0 {
		return m
	}
	last := mc.passes[len(mc.passes)-1]
	m.LastBlock = last.Block
	m.LastAdvanceAt = last.ProcessedAt

	if len(mc.passes) >= 2 {
		first := mc.passes[0]
		duration := last.ProcessedAt.Sub(first.ProcessedAt)
		if duration > 0 && last.Block > first.Block {
			m.BlocksPerSecond = float64(last.Block-first.Block) / duration.Seconds()
		}
	}
	return m
}

// Reset clears all collected metrics.
func (mc *MetricsCollector) Reset() {
	mc.passes = mc.passes[:0]
}
