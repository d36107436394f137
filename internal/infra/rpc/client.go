// Package rpc provides the chain-aware JSON-RPC client used by the scanners.
//
// Every call goes to the chain's active endpoint as recorded in the shared
// EndpointPool. Slow calls feed the shared HealthMonitor, which rotates the
// pool after consecutive slow responses. A transport failure rotates at once
// and retries the call a single time against the new head.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/walletwatch/internal/core/domain"
	"github.com/vietddude/walletwatch/internal/indexing/metrics"
	"github.com/vietddude/walletwatch/internal/infra/rpc/provider"
	"github.com/vietddude/walletwatch/internal/infra/rpc/routing"
)

// DefaultCallTimeout bounds a single attempt against one endpoint.
const DefaultCallTimeout = 10 * time.Second

// Rotation reasons reported to the rotation hook and metrics.
const (
	ReasonSlow      = "slow"
	ReasonTransport = "transport"
	ReasonManual    = "manual"
)

// RotationEvent describes an endpoint switch performed by this client.
type RotationEvent struct {
	Chain  domain.ChainID
	From   domain.Endpoint
	To     domain.Endpoint
	Reason string
	Err    error
}

// Client is the high-level interface for making RPC calls on one chain.
type Client struct {
	chain    domain.ChainID
	pool     *routing.EndpointPool
	health   *routing.HealthMonitor
	router   *routing.Router
	timeout  time.Duration
	onRotate func(RotationEvent)
	log      *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithCallTimeout sets the per-attempt deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRotationHook registers a callback fired after this client rotates the pool.
func WithRotationHook(fn func(RotationEvent)) Option {
	return func(c *Client) {
		c.onRotate = fn
	}
}

// NewClient creates a new RPC client for a chain.
func NewClient(
	chain domain.ChainID,
	pool *routing.EndpointPool,
	health *routing.HealthMonitor,
	router *routing.Router,
	opts ...Option,
) *Client {
	c := &Client{
		chain:   chain,
		pool:    pool,
		health:  health,
		router:  router,
		timeout: DefaultCallTimeout,
		log:     slog.Default().With("component", "rpc", "chain", chain),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chain returns the chain served by this client.
func (c *Client) Chain() domain.ChainID {
	return c.chain
}

// Call invokes method on the active endpoint and decodes the result into
// result, which may be nil. Cancellation of ctx is returned as-is and never
// causes a rotation.
func (c *Client) Call(ctx context.Context, method string, params []any, result any) error {
	ep, err := c.pool.Current(ctx, c.chain)
	if err != nil {
		return err
	}

	err = c.attempt(ctx, ep, method, params, result)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if routing.ClassifyError(err) != routing.ActionFailover {
		return err
	}

	c.log.Warn("RPC call failed, rotating endpoint", "endpoint", ep.URL, "method", method, "error", err)
	next, rerr := c.rotate(ctx, ep, ReasonTransport, err)
	if rerr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &domain.ChainUnavailableError{Chain: c.chain, Err: errors.Join(err, rerr)}
	}

	retryErr := c.attempt(ctx, next, method, params, result)
	if retryErr == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if routing.ClassifyError(retryErr) != routing.ActionFailover {
		return retryErr
	}
	return &domain.ChainUnavailableError{Chain: c.chain, Err: errors.Join(err, retryErr)}
}

// ForceRotation rotates away from the current head regardless of health.
func (c *Client) ForceRotation(ctx context.Context) (domain.Endpoint, error) {
	ep, err := c.pool.Current(ctx, c.chain)
	if err != nil {
		return domain.Endpoint{}, err
	}
	return c.rotate(ctx, ep, ReasonManual, nil)
}

// GetProviderStats returns health of every endpoint of the chain.
func (c *Client) GetProviderStats() map[string]provider.HealthStatus {
	stats := make(map[string]provider.HealthStatus)
	for _, p := range c.router.GetAllProviders(c.chain) {
		stats[p.Endpoint().URL] = p.GetHealth()
	}
	return stats
}

func (c *Client) attempt(ctx context.Context, ep domain.Endpoint, method string, params []any, result any) error {
	p, err := c.router.GetProvider(ep)
	if err != nil {
		return err
	}

	// Time spent queued on the local limiter is not the endpoint's latency.
	if werr := p.Wait(ctx); werr != nil {
		return fmt.Errorf("%s: throttled locally: %w", ep.URL, werr)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	start := time.Now()
	raw, err := p.Call(callCtx, method, params)
	elapsed := time.Since(start)
	cancel()

	metrics.RPCCallsTotal.WithLabelValues(string(c.chain), ep.URL, method).Inc()
	metrics.RPCLatency.WithLabelValues(string(c.chain), ep.URL, method).Observe(elapsed.Seconds())

	if err == nil && result != nil {
		if uerr := json.Unmarshal(raw, result); uerr != nil {
			err = &domain.TransportError{Endpoint: ep.URL, Method: method, Err: fmt.Errorf("decode result: %w", uerr)}
		}
	}
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(string(c.chain), ep.URL, errorType(err)).Inc()
	}

	// Only completed round-trips count towards the slow counter; transport
	// failures rotate immediately instead.
	if err == nil || errors.Is(err, domain.ErrRPC) {
		c.observe(ctx, ep, elapsed)
	}
	return err
}

func (c *Client) observe(ctx context.Context, ep domain.Endpoint, elapsed time.Duration) {
	decision, err := c.health.Observe(ctx, c.chain, elapsed)
	if err != nil {
		c.log.Warn("Failed to record call latency", "endpoint", ep.URL, "error", err)
		return
	}
	if decision != routing.RotateNow {
		return
	}
	c.log.Warn("Endpoint is slow, rotating", "endpoint", ep.URL, "elapsed", elapsed)
	if _, err := c.rotate(ctx, ep, ReasonSlow, nil); err != nil {
		c.log.Warn("Failed to rotate slow endpoint", "endpoint", ep.URL, "error", err)
	}
}

func (c *Client) rotate(ctx context.Context, from domain.Endpoint, reason string, cause error) (domain.Endpoint, error) {
	next, rotated, err := c.pool.Rotate(ctx, c.chain, from)
	if err != nil {
		return domain.Endpoint{}, err
	}
	if rotated {
		metrics.EndpointRotations.WithLabelValues(string(c.chain), reason).Inc()
		if c.onRotate != nil {
			c.onRotate(RotationEvent{Chain: c.chain, From: from, To: next, Reason: reason, Err: cause})
		}
	}
	return next, nil
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrTransport):
		return "transport"
	case errors.Is(err, domain.ErrRPC):
		return "rpc"
	case errors.Is(err, domain.ErrConfig):
		return "config"
	default:
		return "other"
	}
}
