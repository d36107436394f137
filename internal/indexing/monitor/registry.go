// Package monitor runs incremental monitoring passes per currency: it picks
// the block range from the checkpoint, dispatches to the native or token
// scanner, hands events to the emitter and only then advances the checkpoint.
package monitor

import (
	"sort"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

// Registry is the immutable currency-to-config table.
type Registry struct {
	configs map[string]domain.MonitorConfig
}

// NewRegistry validates every config, applies defaults and indexes them by currency.
func NewRegistry(configs ...domain.MonitorConfig) (*Registry, error) {
	r := &Registry{configs: make(map[string]domain.MonitorConfig, len(configs))}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.configs[cfg.Currency]; dup {
			return nil, &domain.ConfigError{Field: cfg.Currency, Reason: "duplicate currency"}
		}
		cfg = cfg.WithDefaults()
		if cfg.ContractAddress != "" {
			cfg.ContractAddress = domain.NormalizeAddress(cfg.ContractAddress)
		}
		if cfg.SafeAddress != "" {
			cfg.SafeAddress = domain.NormalizeAddress(cfg.SafeAddress)
		}
		r.configs[cfg.Currency] = cfg
	}
	return r, nil
}

// Lookup returns the config for currency.
func (r *Registry) Lookup(currency string) (domain.MonitorConfig, error) {
	cfg, ok := r.configs[currency]
	if !ok {
		return domain.MonitorConfig{}, &domain.UnknownCurrencyError{Currency: currency}
	}
	return cfg, nil
}

// Currencies returns the registered currencies in sorted order.
func (r *Registry) Currencies() []string {
	out := make([]string, 0, len(r.configs))
	for c := range r.configs {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Chains returns the distinct chains referenced by the registry.
func (r *Registry) Chains() []domain.ChainID {
	seen := make(map[domain.ChainID]struct{})
	var out []domain.ChainID
	for _, c := range r.Currencies() {
		ch := r.configs[c].Chain
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	return out
}
