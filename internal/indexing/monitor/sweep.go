package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

// BalanceFunc reads the balance of a deposit address in currency units.
type BalanceFunc func(ctx context.Context, currency, addr string) (decimal.Decimal, error)

// SweepCandidate is a deposit address ready to be swept into the safe address.
type SweepCandidate struct {
	Currency    string
	Address     string
	Balance     decimal.Decimal
	LastInbound time.Time
}

// SweepTracker remembers the last inbound transfer per deposit address and
// flags addresses that have been quiet for AccumulationTimeout while holding
// at least DeltaAmount.
type SweepTracker struct {
	registry *Registry
	now      func() time.Time

	mu   sync.Mutex
	last map[string]map[string]time.Time // currency -> address -> last inbound
}

// NewSweepTracker creates a tracker over the currencies in registry.
func NewSweepTracker(registry *Registry) *SweepTracker {
	return &SweepTracker{
		registry: registry,
		now:      time.Now,
		last:     make(map[string]map[string]time.Time),
	}
}

// Observe records an event. Only inbound transfers to deposit addresses count.
func (t *SweepTracker) Observe(ev domain.TransferEvent) {
	if ev.Direction != domain.DirectionIn {
		return
	}
	cfg, err := t.registry.Lookup(ev.Currency)
	if err != nil || cfg.AccumulationTimeout <= 0 {
		return
	}
	addr := domain.NormalizeAddress(ev.TrackedAddress)
	if addr == cfg.SafeAddress {
		return
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	byAddr, ok := t.last[ev.Currency]
	if !ok {
		byAddr = make(map[string]time.Time)
		t.last[ev.Currency] = byAddr
	}
	if ts.After(byAddr[addr]) {
		byAddr[addr] = ts
	}
}

// Due returns the addresses whose last inbound is older than the currency's
// AccumulationTimeout and whose balance reaches DeltaAmount. Flagged
// addresses are forgotten until the next inbound transfer.
func (t *SweepTracker) Due(ctx context.Context, now time.Time, balanceOf BalanceFunc) ([]SweepCandidate, error) {
	type pending struct {
		currency string
		addr     string
		last     time.Time
	}
	var check []pending

	t.mu.Lock()
	for currency, byAddr := range t.last {
		cfg, err := t.registry.Lookup(currency)
		if err != nil {
			continue
		}
		for addr, last := range byAddr {
			if now.Sub(last) > cfg.AccumulationTimeout {
				check = append(check, pending{currency: currency, addr: addr, last: last})
			}
		}
	}
	t.mu.Unlock()

	var out []SweepCandidate
	for _, c := range check {
		cfg, _ := t.registry.Lookup(c.currency)
		bal, err := balanceOf(ctx, c.currency, c.addr)
		if err != nil {
			return out, err
		}
		if bal.LessThan(cfg.DeltaAmount) {
			continue
		}
		out = append(out, SweepCandidate{Currency: c.currency, Address: c.addr, Balance: bal, LastInbound: c.last})
		t.forget(c.currency, c.addr, c.last)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Currency != out[j].Currency {
			return out[i].Currency < out[j].Currency
		}
		return out[i].Address < out[j].Address
	})
	return out, nil
}

// forget drops addr unless a newer inbound arrived while Due was running.
func (t *SweepTracker) forget(currency, addr string, seen time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if byAddr, ok := t.last[currency]; ok && !byAddr[addr].After(seen) {
		delete(byAddr, addr)
	}
}

// Pending returns the number of addresses currently tracked.
func (t *SweepTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, byAddr := range t.last {
		n += len(byAddr)
	}
	return n
}
