package cursor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/walletwatch/internal/core/domain"
	"github.com/vietddude/walletwatch/internal/indexing/metrics"
	"github.com/vietddude/walletwatch/internal/infra/storage"
)

const maxCASAttempts = 16

var timeNow = time.Now

// Manager handles checkpoint reads and writes.
type Manager interface {
	// Get returns the checkpoint and whether one exists.
	Get(ctx context.Context, chain domain.ChainID, currency string) (domain.Checkpoint, bool, error)

	// Advance raises the checkpoint to block. Lower or equal values are ignored.
	Advance(ctx context.Context, chain domain.ChainID, currency string, block uint64) error

	// Reset overwrites the checkpoint, possibly lowering it.
	Reset(ctx context.Context, chain domain.ChainID, currency string, block uint64) error

	// GetLag returns blocks between the checkpoint and the chain tip.
	GetLag(ctx context.Context, chain domain.ChainID, currency string, latestBlock uint64) (uint64, error)

	// GetMetrics returns throughput for a currency.
	GetMetrics(currency string) Metrics
}

// DefaultManager implements Manager over a storage.StateStore.
type DefaultManager struct {
	store     storage.StateStore
	mu        sync.RWMutex
	collector map[string]*MetricsCollector
	now       func() time.Time
}

type record struct {
	Block     uint64 `json:"block"`
	UpdatedAt int64  `json:"updated_at"`
}

func (m *DefaultManager) read(ctx context.Context, chain domain.ChainID, currency string) ([]byte, *record, error) {
	raw, ok, err := m.store.Get(ctx, storage.CheckpointKey(string(chain), currency))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	if !ok {
		return nil, nil, nil
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return raw, nil, fmt.Errorf("corrupt checkpoint for %s/%s: %w", chain, currency, err)
	}
	return raw, &rec, nil
}

// Get returns the checkpoint and whether one exists.
func (m *DefaultManager) Get(ctx context.Context, chain domain.ChainID, currency string) (domain.Checkpoint, bool, error) {
	_, rec, err := m.read(ctx, chain, currency)
	if err != nil || rec == nil {
		return domain.Checkpoint{}, false, err
	}
	return domain.Checkpoint{
		Chain:     chain,
		Currency:  currency,
		Block:     rec.Block,
		UpdatedAt: time.Unix(rec.UpdatedAt, 0).UTC(),
	}, true, nil
}

// Advance raises the checkpoint to block with compare-and-swap.
func (m *DefaultManager) Advance(ctx context.Context, chain domain.ChainID, currency string, block uint64) error {
	key := storage.CheckpointKey(string(chain), currency)
	for range maxCASAttempts {
		prev, rec, err := m.read(ctx, chain, currency)
		if err != nil {
			return err
		}
		if rec != nil && rec.Block >= block {
			slog.Debug("Checkpoint already ahead", "chain", chain, "currency", currency,
				"stored", rec.Block, "requested", block)
			return nil
		}
		next, err := m.encode(block)
		if err != nil {
			return err
		}
		swapped, err := m.store.CompareAndSwap(ctx, key, prev, next)
		if err != nil {
			return fmt.Errorf("failed to advance checkpoint: %w", err)
		}
		if swapped {
			m.recordPass(currency, block)
			metrics.CheckpointBlock.WithLabelValues(string(chain), currency).Set(float64(block))
			return nil
		}
	}
	return fmt.Errorf("advance %s/%s checkpoint: %w", chain, currency, domain.ErrStateContention)
}

// Reset overwrites the checkpoint unconditionally.
func (m *DefaultManager) Reset(ctx context.Context, chain domain.ChainID, currency string, block uint64) error {
	next, err := m.encode(block)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, storage.CheckpointKey(string(chain), currency), next); err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	metrics.CheckpointBlock.WithLabelValues(string(chain), currency).Set(float64(block))
	slog.Warn("Checkpoint reset", "chain", chain, "currency", currency, "block", block)
	return nil
}

// GetLag returns how many blocks the checkpoint trails the chain tip.
// A missing checkpoint counts as fully behind.
func (m *DefaultManager) GetLag(ctx context.Context, chain domain.ChainID, currency string, latestBlock uint64) (uint64, error) {
	cp, ok, err := m.Get(ctx, chain, currency)
	if err != nil {
		return 0, err
	}
	if !ok {
		return latestBlock, nil
	}
	if cp.Block >= latestBlock {
		return 0, nil
	}
	return latestBlock - cp.Block, nil
}

// GetMetrics returns throughput for a currency.
func (m *DefaultManager) GetMetrics(currency string) Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collector[currency]; ok {
		return c.GetMetrics()
	}
	return Metrics{}
}

func (m *DefaultManager) encode(block uint64) ([]byte, error) {
	next, err := json.Marshal(record{Block: block, UpdatedAt: m.now().Unix()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return next, nil
}

func (m *DefaultManager) recordPass(currency string, block uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collector[currency]
	if !ok {
		c = NewMetricsCollector(100)
		m.collector[currency] = c
	}
	c.RecordPass(block, m.now())
}
