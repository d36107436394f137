package provider

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// ProviderStatus is the reporting view of one endpoint.
type ProviderStatus int

const (
	StatusHealthy ProviderStatus = iota
	// StatusDegraded means the recent average is over the slow threshold.
	StatusDegraded
	// StatusThrottled means a 429 or a quota message was seen within the cooldown.
	StatusThrottled
	// StatusBlocked means a 403 was seen within the cooldown.
	StatusBlocked
)

func (s ProviderStatus) String() string {
	switch s {
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	case StatusBlocked:
		return "blocked"
	default:
		return "healthy"
	}
}

const latencyWindow = 100

// Node providers phrase quota errors differently and often return them with HTTP 200.
var throttleMarkers = []string{
	"rate limit",
	"too many requests",
	"request count exceeded",
	"quota exceeded",
	"capacity exceeded",
}

// MonitorStats holds monitoring statistics for a provider.
type MonitorStats struct {
	Status           string        `json:"status"`
	AverageLatency   time.Duration `json:"average_latency"`
	MaxLatency       time.Duration `json:"max_latency"`
	SlowCalls        int           `json:"slow_calls"`
	ThrottleCount429 int           `json:"throttle_count_429"`
	ThrottleCount403 int           `json:"throttle_count_403"`
}

// ProviderMonitor keeps a latency window and throttle history for one endpoint.
// It only feeds reporting; rotation is decided by the shared slow counter.
type ProviderMonitor struct {
	mu sync.RWMutex

	latencies [latencyWindow]time.Duration
	next      int
	filled    int
	slowCalls int

	status429Count int
	status403Count int
	lastThrottle   time.Time
	cooldown       time.Duration

	slowThreshold time.Duration
}

// NewProviderMonitor creates a monitor that counts calls slower than slowThreshold.
func NewProviderMonitor(slowThreshold time.Duration) *ProviderMonitor {
	return &ProviderMonitor{
		cooldown:      time.Minute,
		slowThreshold: slowThreshold,
	}
}

// RecordRequest records a completed request with its latency.
func (pm *ProviderMonitor) RecordRequest(latency time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.latencies[pm.next] = latency
	pm.next = (pm.next + 1) % latencyWindow
	if pm.filled < latencyWindow {
		pm.filled++
	}
	if pm.slowThreshold > 0 && latency > pm.slowThreshold {
		pm.slowCalls++
	}
}

// RecordThrottle records a rate limiting or blocking response.
func (pm *ProviderMonitor) RecordThrottle(statusCode int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.lastThrottle = time.Now()
	switch statusCode {
	case http.StatusTooManyRequests:
		pm.status429Count++
	case http.StatusForbidden:
		pm.status403Count++
	}
}

// DetectThrottlePattern reports whether an RPC error message is a quota error.
func (pm *ProviderMonitor) DetectThrottlePattern(message string) bool {
	msg := strings.ToLower(message)
	for _, m := range throttleMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// CheckProviderStatus returns the current status of the provider.
func (pm *ProviderMonitor) CheckProviderStatus() ProviderStatus {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.status()
}

func (pm *ProviderMonitor) status() ProviderStatus {
	recent := time.Since(pm.lastThrottle) < pm.cooldown
	switch {
	case pm.status403Count > 0 && recent:
		return StatusBlocked
	case pm.status429Count > 0 && recent:
		return StatusThrottled
	case pm.filled >= 3 && pm.slowThreshold > 0 && pm.average() > pm.slowThreshold:
		return StatusDegraded
	}
	return StatusHealthy
}

func (pm *ProviderMonitor) average() time.Duration {
	if pm.filled == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range pm.latencies[:pm.filled] {
		total += l
	}
	return total / time.Duration(pm.filled)
}

// GetStats returns current monitoring statistics.
func (pm *ProviderMonitor) GetStats() MonitorStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	var maxLat time.Duration
	for _, l := range pm.latencies[:pm.filled] {
		maxLat = max(maxLat, l)
	}
	return MonitorStats{
		Status:           pm.status().String(),
		AverageLatency:   pm.average(),
		MaxLatency:       maxLat,
		SlowCalls:        pm.slowCalls,
		ThrottleCount429: pm.status429Count,
		ThrottleCount403: pm.status403Count,
	}
}
