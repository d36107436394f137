package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/walletwatch/internal/core/cursor"
	"github.com/vietddude/walletwatch/internal/core/domain"
	"github.com/vietddude/walletwatch/internal/infra/rpc/provider"
)

// BlockHeightFetcher fetches the latest block height for a chain.
type BlockHeightFetcher interface {
	GetLatestHeight(ctx context.Context, chain domain.ChainID) (uint64, error)
}

// EndpointReader exposes the shared endpoint order.
type EndpointReader interface {
	Order(ctx context.Context, chain domain.ChainID) ([]domain.Endpoint, error)
}

// SlowCounter exposes the consecutive slow call counter.
type SlowCounter interface {
	SlowCount(ctx context.Context, chain domain.ChainID) (int, error)
}

// ProviderStatsFunc returns per-endpoint transport health of a chain.
type ProviderStatsFunc func(chain domain.ChainID) map[string]provider.HealthStatus

// Target is one monitored currency and its lag alert threshold.
type Target struct {
	Chain    domain.ChainID
	Currency string
	LagAlert uint64
}

// Monitor aggregates health status from the endpoint pool, the slow counters
// and the checkpoints.
type Monitor struct {
	targets       []Target
	cursorMgr     cursor.Manager
	endpoints     EndpointReader
	slow          SlowCounter
	heightFetcher BlockHeightFetcher
	providers     ProviderStatsFunc
	cacheTTL      time.Duration
	lastCheck     time.Time
	lastReport    map[string]ChainHealth
	mu            sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(
	targets []Target,
	cursorMgr cursor.Manager,
	endpoints EndpointReader,
	slow SlowCounter,
	heightFetcher BlockHeightFetcher,
) *Monitor {
	return &Monitor{
		targets:       targets,
		cursorMgr:     cursorMgr,
		endpoints:     endpoints,
		slow:          slow,
		heightFetcher: heightFetcher,
		cacheTTL:      10 * time.Second,
		lastReport:    make(map[string]ChainHealth),
	}
}

// SetProviderStats attaches per-endpoint stats to chain reports.
func (m *Monitor) SetProviderStats(fn ProviderStatsFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = fn
}

// CheckHealth performs a health check for all chains.
func (m *Monitor) CheckHealth(ctx context.Context) map[string]ChainHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid spamming RPC
	if time.Since(m.lastCheck) < m.cacheTTL && len(m.lastReport) > 0 {
		return m.lastReport
	}

	report := make(map[string]ChainHealth)
	for _, t := range m.targets {
		chain := string(t.Chain)
		h, seen := report[chain]
		if !seen {
			h = m.checkChain(ctx, t.Chain)
		}
		if h.Error == "" {
			h.Currencies[t.Currency] = m.checkCurrency(ctx, t, h.LatestBlock)
			h.Status = worse(h.Status, h.Currencies[t.Currency].Status)
		}
		report[chain] = h
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) checkChain(ctx context.Context, chain domain.ChainID) ChainHealth {
	h := ChainHealth{
		Chain:      string(chain),
		Status:     StatusHealthy,
		Currencies: make(map[string]CurrencyHealth),
	}

	if order, err := m.endpoints.Order(ctx, chain); err == nil {
		for _, ep := range order {
			h.EndpointOrder = append(h.EndpointOrder, ep.URL)
		}
		if len(order) > 0 {
			h.ActiveEndpoint = order[0].URL
		}
	}
	if n, err := m.slow.SlowCount(ctx, chain); err == nil {
		h.SlowCount = n
	}
	if m.providers != nil {
		h.Providers = m.providers(chain)
	}

	latest, err := m.heightFetcher.GetLatestHeight(ctx, chain)
	if err != nil {
		// No reachable endpoint
		h.Status = StatusCritical
		h.Error = err.Error()
		return h
	}
	h.LatestBlock = latest
	if h.SlowCount > 0 {
		h.Status = StatusDegraded
	}
	return h
}

func (m *Monitor) checkCurrency(ctx context.Context, t Target, latest uint64) CurrencyHealth {
	c := CurrencyHealth{Status: StatusHealthy}
	cp, ok, err := m.cursorMgr.Get(ctx, t.Chain, t.Currency)
	if err != nil {
		c.Status = StatusDegraded
		return c
	}
	if ok {
		c.Checkpoint = cp.Block
	}
	lag, err := m.cursorMgr.GetLag(ctx, t.Chain, t.Currency, latest)
	if err != nil {
		c.Status = StatusDegraded
		return c
	}
	c.Lag = lag

	threshold := t.LagAlert
	if threshold == 0 {
		threshold = domain.DefaultBlocksDiffAlert
	}
	switch {
	case lag > 4*threshold:
		c.Status = StatusCritical
	case lag > threshold:
		c.Status = StatusDegraded
	}
	return c
}
