package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/vietddude/walletwatch/internal/core/domain"
	"github.com/vietddude/walletwatch/internal/infra/storage"
)

// maxSwapAttempts bounds optimistic retries against the shared store.
const maxSwapAttempts = 16

// EndpointPool keeps the ordered endpoint list of each chain in the shared
// StateStore. The head of the list is the active endpoint. Rotation moves the
// head to the tail and is applied at most once per observed endpoint, so
// processes racing to rotate away from the same endpoint produce one rotation.
type EndpointPool struct {
	store      storage.StateStore
	configured map[domain.ChainID][]string
	log        *slog.Logger
}

// NewEndpointPool validates the configured endpoint lists.
func NewEndpointPool(store storage.StateStore, endpoints map[domain.ChainID][]string) (*EndpointPool, error) {
	configured := make(map[domain.ChainID][]string, len(endpoints))
	for chain, urls := range endpoints {
		if len(urls) == 0 {
			return nil, &domain.ConfigError{Field: fmt.Sprintf("chains.%s.endpoints", chain), Reason: "at least one endpoint is required"}
		}
		seen := make(map[string]struct{}, len(urls))
		for _, u := range urls {
			if u == "" {
				return nil, &domain.ConfigError{Field: fmt.Sprintf("chains.%s.endpoints", chain), Reason: "empty endpoint url"}
			}
			if _, dup := seen[u]; dup {
				return nil, &domain.ConfigError{Field: fmt.Sprintf("chains.%s.endpoints", chain), Reason: "duplicate endpoint " + u}
			}
			seen[u] = struct{}{}
		}
		configured[chain] = slices.Clone(urls)
	}
	return &EndpointPool{
		store:      store,
		configured: configured,
		log:        slog.Default().With("component", "endpoint_pool"),
	}, nil
}

// Chains returns the configured chains in a stable order.
func (p *EndpointPool) Chains() []domain.ChainID {
	out := make([]domain.ChainID, 0, len(p.configured))
	for c := range p.configured {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Current returns the active endpoint of a chain.
func (p *EndpointPool) Current(ctx context.Context, chain domain.ChainID) (domain.Endpoint, error) {
	_, order, err := p.load(ctx, chain)
	if err != nil {
		return domain.Endpoint{}, err
	}
	return domain.Endpoint{Chain: chain, URL: order[0]}, nil
}

// Order returns the full shared order of a chain, head first.
func (p *EndpointPool) Order(ctx context.Context, chain domain.ChainID) ([]domain.Endpoint, error) {
	_, order, err := p.load(ctx, chain)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Endpoint, len(order))
	for i, u := range order {
		out[i] = domain.Endpoint{Chain: chain, URL: u}
	}
	return out, nil
}

// Rotate moves observed from the head to the tail and returns the new head.
// If the head is no longer observed, another process already rotated and
// the current head is returned without a second rotation.
func (p *EndpointPool) Rotate(ctx context.Context, chain domain.ChainID, observed domain.Endpoint) (domain.Endpoint, bool, error) {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		raw, order, err := p.load(ctx, chain)
		if err != nil {
			return domain.Endpoint{}, false, err
		}
		if order[0] != observed.URL {
			return domain.Endpoint{Chain: chain, URL: order[0]}, false, nil
		}

		next := append(slices.Clone(order[1:]), order[0])
		encoded, err := json.Marshal(next)
		if err != nil {
			return domain.Endpoint{}, false, err
		}
		ok, err := p.store.CompareAndSwap(ctx, storage.EndpointsKey(string(chain)), raw, encoded)
		if err != nil {
			return domain.Endpoint{}, false, fmt.Errorf("rotate %s endpoints: %w", chain, err)
		}
		if ok {
			p.log.Info("Rotated endpoint", "chain", chain, "from", observed.URL, "to", next[0])
			return domain.Endpoint{Chain: chain, URL: next[0]}, true, nil
		}
	}
	return domain.Endpoint{}, false, fmt.Errorf("rotate %s endpoints: %w", chain, domain.ErrStateContention)
}

// Reset writes the configured order back to the store.
func (p *EndpointPool) Reset(ctx context.Context, chain domain.ChainID) error {
	urls, ok := p.configured[chain]
	if !ok {
		return unknownChain(chain)
	}
	encoded, err := json.Marshal(urls)
	if err != nil {
		return err
	}
	return p.store.Set(ctx, storage.EndpointsKey(string(chain)), encoded)
}

// load returns the stored raw value and the decoded order. A missing, corrupt
// or stale stored order is replaced by the configured one.
func (p *EndpointPool) load(ctx context.Context, chain domain.ChainID) ([]byte, []string, error) {
	urls, ok := p.configured[chain]
	if !ok {
		return nil, nil, unknownChain(chain)
	}
	key := storage.EndpointsKey(string(chain))

	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		raw, found, err := p.store.Get(ctx, key)
		if err != nil {
			return nil, nil, fmt.Errorf("load %s endpoints: %w", chain, err)
		}
		if found {
			if order, valid := p.decode(chain, raw); valid {
				return raw, order, nil
			}
			p.log.Warn("Stored endpoint order does not match config, reinitializing", "chain", chain, "stored", string(raw))
		}

		encoded, err := json.Marshal(urls)
		if err != nil {
			return nil, nil, err
		}
		var prev []byte
		if found {
			prev = raw
		}
		swapped, err := p.store.CompareAndSwap(ctx, key, prev, encoded)
		if err != nil {
			return nil, nil, fmt.Errorf("init %s endpoints: %w", chain, err)
		}
		if swapped {
			return encoded, slices.Clone(urls), nil
		}
	}
	return nil, nil, fmt.Errorf("load %s endpoints: %w", chain, domain.ErrStateContention)
}

// decode accepts a stored order only if it is a permutation of the configured URLs.
func (p *EndpointPool) decode(chain domain.ChainID, raw []byte) ([]string, bool) {
	var order []string
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, false
	}
	want := p.configured[chain]
	if len(order) != len(want) {
		return nil, false
	}
	a, b := slices.Clone(order), slices.Clone(want)
	slices.Sort(a)
	slices.Sort(b)
	return order, slices.Equal(a, b)
}

func unknownChain(chain domain.ChainID) error {
	return &domain.ConfigError{Field: "chains", Reason: fmt.Sprintf("chain %s has no endpoints configured", chain)}
}
