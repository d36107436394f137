package routing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vietddude/walletwatch/internal/core/domain"
	"github.com/vietddude/walletwatch/internal/infra/storage"
)

// Slow-call defaults: three consecutive calls of at least 2.8s trigger rotation.
const (
	DefaultSlowThreshold = 2800 * time.Millisecond
	DefaultSlowStrikes   = 3
)

// Decision is the outcome of observing one call.
type Decision int

const (
	NoAction Decision = iota
	RotateNow
)

func (d Decision) String() string {
	if d == RotateNow {
		return "rotate"
	}
	return "none"
}

// HealthMonitor keeps a per-chain count of consecutive slow calls in the
// shared StateStore. A fast call resets the count. Reaching the strike
// limit resets it and asks for a rotation.
type HealthMonitor struct {
	store      storage.StateStore
	threshold  time.Duration
	strikes    int
	thresholds map[domain.ChainID]time.Duration
}

// HealthOption customizes a HealthMonitor.
type HealthOption func(*HealthMonitor)

// WithSlowThreshold overrides the default slow threshold for all chains.
func WithSlowThreshold(d time.Duration) HealthOption {
	return func(m *HealthMonitor) {
		if d > 0 {
			m.threshold = d
		}
	}
}

// WithChainThreshold overrides the slow threshold for one chain.
func WithChainThreshold(chain domain.ChainID, d time.Duration) HealthOption {
	return func(m *HealthMonitor) {
		if d > 0 {
			m.thresholds[chain] = d
		}
	}
}

// WithStrikes overrides how many consecutive slow calls trigger a rotation.
func WithStrikes(n int) HealthOption {
	return func(m *HealthMonitor) {
		if n > 0 {
			m.strikes = n
		}
	}
}

// NewHealthMonitor creates a monitor backed by the shared store.
func NewHealthMonitor(store storage.StateStore, opts ...HealthOption) *HealthMonitor {
	m := &HealthMonitor{
		store:      store,
		threshold:  DefaultSlowThreshold,
		strikes:    DefaultSlowStrikes,
		thresholds: make(map[domain.ChainID]time.Duration),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the slow threshold applied to a chain.
func (m *HealthMonitor) Threshold(chain domain.ChainID) time.Duration {
	if d, ok := m.thresholds[chain]; ok {
		return d
	}
	return m.threshold
}

// Observe records the duration of a call and decides whether to rotate.
func (m *HealthMonitor) Observe(ctx context.Context, chain domain.ChainID, elapsed time.Duration) (Decision, error) {
	key := storage.SlowCounterKey(string(chain))
	slow := elapsed >= m.Threshold(chain)

	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		raw, found, err := m.store.Get(ctx, key)
		if err != nil {
			return NoAction, fmt.Errorf("load %s slow counter: %w", chain, err)
		}
		count := 0
		if found {
			// A corrupt counter is treated as zero.
			if n, perr := strconv.Atoi(string(raw)); perr == nil && n >= 0 {
				count = n
			}
		}

		next, decision := 0, NoAction
		if slow {
			next = count + 1
			if next >= m.strikes {
				next, decision = 0, RotateNow
			}
		}
		if found && !slow && string(raw) == "0" {
			return NoAction, nil
		}

		var prev []byte
		if found {
			prev = raw
		}
		ok, err := m.store.CompareAndSwap(ctx, key, prev, []byte(strconv.Itoa(next)))
		if err != nil {
			return NoAction, fmt.Errorf("update %s slow counter: %w", chain, err)
		}
		if ok {
			return decision, nil
		}
	}
	return NoAction, fmt.Errorf("update %s slow counter: %w", chain, domain.ErrStateContention)
}

// SlowCount returns the current counter for reporting.
func (m *HealthMonitor) SlowCount(ctx context.Context, chain domain.ChainID) (int, error) {
	raw, found, err := m.store.Get(ctx, storage.SlowCounterKey(string(chain)))
	if err != nil || !found {
		return 0, err
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, nil
	}
	return n, nil
}
