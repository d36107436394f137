// Package health provides system health monitoring and status reporting.
package health

import "github.com/vietddude/walletwatch/internal/infra/rpc/provider"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// CurrencyHealth is the checkpoint position of one monitored currency.
type CurrencyHealth struct {
	Checkpoint uint64       `json:"checkpoint"`
	Lag        uint64       `json:"lag"`
	Status     SystemStatus `json:"status"`
}

// ChainHealth contains health metrics for a specific chain.
type ChainHealth struct {
	Chain          string                           `json:"chain"`
	Status         SystemStatus                     `json:"status"`
	LatestBlock    uint64                           `json:"latest_block"`
	ActiveEndpoint string                           `json:"active_endpoint"`
	EndpointOrder  []string                         `json:"endpoint_order"`
	SlowCount      int                              `json:"slow_count"`
	Currencies     map[string]CurrencyHealth        `json:"currencies"`
	Providers      map[string]provider.HealthStatus `json:"providers,omitempty"`
	Error          string                           `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus           `json:"system_status"`
	Chains       map[string]ChainHealth `json:"chains"`
}

// worse returns the more severe of two statuses.
func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Aggregate folds chain statuses into the system status (worst case wins).
func Aggregate(chains map[string]ChainHealth) SystemStatus {
	status := StatusHealthy
	for _, c := range chains {
		status = worse(status, c.Status)
	}
	return status
}
