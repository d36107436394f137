// Package provider implements the transport to a single RPC endpoint.
//
// This package contains:
//   - Provider interface: one JSON-RPC endpoint, no routing decisions
//   - HTTPProvider: JSON-RPC 2.0 over HTTP with optional client-side rate limit
//   - ProviderMonitor: latency and throttle tracking for health reporting
package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

// Provider performs raw JSON-RPC calls against one endpoint.
// Transport failures are returned as *domain.TransportError and
// node-reported errors as *domain.RPCError.
type Provider interface {
	// Endpoint returns the endpoint this provider talks to.
	Endpoint() domain.Endpoint

	// Wait blocks until the client-side rate limit admits one request.
	Wait(ctx context.Context) error

	// Call makes a single RPC request and returns the raw "result" member.
	// It does not wait on the rate limit; callers pair it with Wait.
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// Close cleans up resources
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}
