package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

// HTTPConfig tunes an HTTPProvider.
type HTTPConfig struct {
	// RateLimit caps requests per second sent to this endpoint; 0 disables it.
	RateLimit float64
	Burst     int
	// SlowThreshold is only used for health reporting.
	SlowThreshold time.Duration
}

// HTTPProvider implements Provider for JSON-RPC over HTTP.
type HTTPProvider struct {
	endpoint   domain.Endpoint
	httpClient *http.Client
	limiter    *rate.Limiter
	nextID     atomic.Uint64

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int

	Monitor *ProviderMonitor
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewHTTPProvider creates a new HTTP-based RPC provider. The per-call
// deadline comes from the caller's context.
func NewHTTPProvider(endpoint domain.Endpoint, cfg HTTPConfig) *HTTPProvider {
	p := &HTTPProvider{
		endpoint: endpoint,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
		Monitor: NewProviderMonitor(cfg.SlowThreshold),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return p
}

// Endpoint returns the endpoint served by this provider.
func (p *HTTPProvider) Endpoint() domain.Endpoint {
	return p.endpoint
}

// Wait blocks until the limiter grants a request slot.
func (p *HTTPProvider) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}

// Call makes a single JSON-RPC call.
func (p *HTTPProvider) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	start := time.Now()

	jsonData, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      p.nextID.Add(1),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint.URL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, p.transportErr(method, 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.recordFailure()
		return nil, p.transportErr(method, 0, err)
	}
	defer resp.Body.Close()

	// Rate limit and IP block detection
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
		p.Monitor.RecordThrottle(resp.StatusCode)
		p.recordFailure()
		return nil, p.transportErr(method, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.recordFailure()
		return nil, p.transportErr(method, 0, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		p.recordFailure()
		return nil, p.transportErr(method, resp.StatusCode, fmt.Errorf("unexpected body: %.200s", body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		p.recordFailure()
		return nil, p.transportErr(method, 0, fmt.Errorf("parse response: %w", err))
	}

	latency := time.Since(start)
	p.Monitor.RecordRequest(latency)

	if rpcResp.Error != nil {
		if p.Monitor.DetectThrottlePattern(rpcResp.Error.Message) {
			p.Monitor.RecordThrottle(http.StatusTooManyRequests)
			p.recordFailure()
			return nil, p.transportErr(method, 0, fmt.Errorf("throttle in rpc error: %s", rpcResp.Error.Message))
		}
		p.recordSuccess(latency)
		return nil, &domain.RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}

	if len(rpcResp.Result) == 0 {
		p.recordFailure()
		return nil, p.transportErr(method, 0, errors.New("response has neither result nor error"))
	}

	p.recordSuccess(latency)
	return rpcResp.Result, nil
}

// GetHealth returns the provider's health status.
func (p *HTTPProvider) GetHealth() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h := p.health
	stats := p.Monitor.GetStats()
	h.MonitorStats = &stats
	return h
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func (p *HTTPProvider) transportErr(method string, status int, err error) error {
	return &domain.TransportError{Endpoint: p.endpoint.URL, Method: method, Status: status, Err: err}
}

func (p *HTTPProvider) recordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.successCount++
	p.requestCount++
	p.totalLatency += latency
	p.health.LastSuccessAt = time.Now()
	p.health.Available = true

	if p.requestCount > 0 {
		p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	}
	if p.successCount > 0 {
		p.health.Latency = p.totalLatency / time.Duration(p.successCount)
	}
}

func (p *HTTPProvider) recordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failureCount++
	p.requestCount++
	p.health.LastFailureAt = time.Now()

	if p.requestCount > 0 {
		p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	}

	if p.health.ErrorRate > 0.5 {
		p.health.Available = false
	}
}
