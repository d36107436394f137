// Package coldstats reconciles the safe (cold) address of each currency.
//
// Between two reports it sums the transfers the scanners saw into the safe
// address (topups) and out of it (cold_out), then compares against the
// on-chain balance:
//
//	cold_delta = prev_balance + topups - cold_out - current_balance
//
// A non-zero delta means value moved that the monitor did not see.
//
// A failed pass is rescanned from the same checkpoint, so the collector sees
// some events twice. Events are deduplicated by their Key for the last
// DedupHorizon blocks, across report windows.
package coldstats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/walletwatch/internal/core/domain"
	"github.com/vietddude/walletwatch/internal/infra/storage"
)

// Stats is one reconciliation window for a currency.
type Stats struct {
	Currency    string
	Since       time.Time
	Until       time.Time
	PrevBalance decimal.Decimal
	Balance     decimal.Decimal
	Topups      decimal.Decimal
	ColdOut     decimal.Decimal
	ColdDelta   decimal.Decimal
	// First is set when no previous balance was stored; the delta is zero.
	First bool
}

// DedupHorizon is how many blocks behind the highest seen block an event key
// is remembered.
const DedupHorizon uint64 = 10_000

type window struct {
	topups  decimal.Decimal
	coldOut decimal.Decimal
}

// seenSet remembers event keys of one currency with the block they came from.
type seenSet struct {
	keys map[string]uint64
	high uint64
}

// add reports whether key is new.
func (s *seenSet) add(key string, block uint64) bool {
	if _, dup := s.keys[key]; dup {
		return false
	}
	s.keys[key] = block
	s.high = max(s.high, block)
	return true
}

func (s *seenSet) prune() {
	if s.high <= DedupHorizon {
		return
	}
	floor := s.high - DedupHorizon
	for k, b := range s.keys {
		if b < floor {
			delete(s.keys, k)
		}
	}
}

type snapshot struct {
	Balance string `json:"balance"`
	At      int64  `json:"at"`
}

// Collector accumulates safe-address transfers. It implements emitter.Emitter
// so it can sit in the emitter fan-out.
type Collector struct {
	safe  map[string]string // currency -> normalized safe address
	store storage.StateStore
	log   *slog.Logger
	now   func() time.Time

	mu      sync.Mutex
	windows map[string]*window
	seen    map[string]*seenSet
}

// NewCollector tracks the given currency -> safe address pairs.
func NewCollector(store storage.StateStore, safe map[string]string) *Collector {
	norm := make(map[string]string, len(safe))
	for currency, addr := range safe {
		if addr != "" {
			norm[currency] = domain.NormalizeAddress(addr)
		}
	}
	return &Collector{
		safe:    norm,
		store:   store,
		log:     slog.Default().With("component", "coldstats"),
		now:     time.Now,
		windows: make(map[string]*window),
		seen:    make(map[string]*seenSet),
	}
}

// Currencies returns the currencies with a safe address.
func (c *Collector) Currencies() []string {
	out := make([]string, 0, len(c.safe))
	for currency := range c.safe {
		out = append(out, currency)
	}
	return out
}

// Emit records ev once per Key when it touches the safe address of its currency.
func (c *Collector) Emit(_ context.Context, ev domain.TransferEvent) error {
	safe, ok := c.safe[ev.Currency]
	if !ok || domain.NormalizeAddress(ev.TrackedAddress) != safe {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	seen, ok := c.seen[ev.Currency]
	if !ok {
		seen = &seenSet{keys: make(map[string]uint64)}
		c.seen[ev.Currency] = seen
	}
	if !seen.add(ev.Key(), ev.BlockNumber) {
		return nil
	}
	w, ok := c.windows[ev.Currency]
	if !ok {
		w = &window{}
		c.windows[ev.Currency] = w
	}
	switch ev.Direction {
	case domain.DirectionIn:
		w.topups = w.topups.Add(ev.Value)
	case domain.DirectionOut:
		w.coldOut = w.coldOut.Add(ev.Value)
	}
	return nil
}

func (c *Collector) Close() error { return nil }

// Report closes the current window for currency against the on-chain balance
// and stores that balance as the next window's starting point.
func (c *Collector) Report(ctx context.Context, currency string, balance decimal.Decimal) (Stats, error) {
	if _, ok := c.safe[currency]; !ok {
		return Stats{}, &domain.UnknownCurrencyError{Currency: currency}
	}
	key := storage.ColdBalanceKey(currency)
	now := c.now().UTC()

	stats := Stats{Currency: currency, Until: now, Balance: balance}

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return Stats{}, fmt.Errorf("load cold balance: %w", err)
	}
	var prev snapshot
	if ok {
		if err := json.Unmarshal(raw, &prev); err != nil {
			c.log.Warn("Discarding corrupt cold balance snapshot", "currency", currency, "error", err)
			ok = false
		}
	}

	c.mu.Lock()
	w := c.windows[currency]
	delete(c.windows, currency)
	if seen, ok := c.seen[currency]; ok {
		seen.prune()
	}
	c.mu.Unlock()
	if w == nil {
		w = &window{}
	}
	stats.Topups = w.topups
	stats.ColdOut = w.coldOut

	if ok {
		stats.PrevBalance, err = decimal.NewFromString(prev.Balance)
		if err != nil {
			ok = false
		}
		stats.Since = time.Unix(prev.At, 0).UTC()
	}
	if ok {
		stats.ColdDelta = Delta(stats.PrevBalance, stats.Topups, stats.ColdOut, balance)
	} else {
		stats.First = true
		stats.PrevBalance = balance
	}

	next, err := json.Marshal(snapshot{Balance: balance.String(), At: now.Unix()})
	if err != nil {
		return Stats{}, err
	}
	if err := c.store.Set(ctx, key, next); err != nil {
		return Stats{}, fmt.Errorf("store cold balance: %w", err)
	}
	return stats, nil
}

// Delta is prev + topups - coldOut - current.
func Delta(prev, topups, coldOut, current decimal.Decimal) decimal.Decimal {
	return prev.Add(topups).Sub(coldOut).Sub(current)
}
