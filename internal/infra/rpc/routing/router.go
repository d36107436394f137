// Package routing decides which endpoint serves a chain.
//
// This package contains:
//   - EndpointPool: the shared, cyclically rotated endpoint order per chain
//   - HealthMonitor: the debounced slow-call counter that triggers rotation
//   - Router: maps endpoints to their transport providers
//   - ClassifyError: decides whether a failed call should fail over
package routing

import (
	"fmt"
	"sync"

	"github.com/vietddude/walletwatch/internal/core/domain"
	"github.com/vietddude/walletwatch/internal/infra/rpc/provider"
)

// Router holds the transport provider of every configured endpoint.
type Router struct {
	mu             sync.RWMutex
	chainProviders map[domain.ChainID]map[string]provider.Provider
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		chainProviders: make(map[domain.ChainID]map[string]provider.Provider),
	}
}

// AddProvider registers a provider under its endpoint.
func (r *Router) AddProvider(p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep := p.Endpoint()
	byURL, ok := r.chainProviders[ep.Chain]
	if !ok {
		byURL = make(map[string]provider.Provider)
		r.chainProviders[ep.Chain] = byURL
	}
	byURL[ep.URL] = p
}

// GetProvider returns the provider serving an endpoint.
func (r *Router) GetProvider(ep domain.Endpoint) (provider.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.chainProviders[ep.Chain][ep.URL]
	if !ok {
		return nil, &domain.ConfigError{
			Field:  fmt.Sprintf("chains.%s.endpoints", ep.Chain),
			Reason: "no provider registered for " + ep.URL,
		}
	}
	return p, nil
}

// GetAllProviders returns all providers for a chain.
func (r *Router) GetAllProviders(chain domain.ChainID) []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]provider.Provider, 0, len(r.chainProviders[chain]))
	for _, p := range r.chainProviders[chain] {
		result = append(result, p)
	}
	return result
}

// Close closes every registered provider.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, byURL := range r.chainProviders {
		for _, p := range byURL {
			_ = p.Close()
		}
	}
	return nil
}
