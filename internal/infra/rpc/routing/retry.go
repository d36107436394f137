package routing

import (
	"context"
	"errors"
	"strings"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	// ActionFailover rotates to the next endpoint and retries once.
	ActionFailover ErrorAction = iota
	// ActionFatal returns the error to the caller unchanged.
	ActionFatal
)

func (a ErrorAction) String() string {
	if a == ActionFailover {
		return "failover"
	}
	return "fatal"
}

// ClassifyError determines the action for a given error.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionFatal
	}

	// Cancellation by the caller is never the endpoint's fault.
	if errors.Is(err, context.Canceled) && !errors.Is(err, domain.ErrTransport) {
		return ActionFatal
	}

	if errors.Is(err, domain.ErrTransport) {
		return ActionFailover
	}

	// A node answered with a well-formed error; another node would say the same.
	if errors.Is(err, domain.ErrRPC) {
		return ActionFatal
	}

	s := err.Error()
	sLower := strings.ToLower(s)

	// -32700: Parse error, -32600: Invalid Request, -32601: Method not found, -32602: Invalid params
	if strings.Contains(s, "-32700") || strings.Contains(s, "-32600") ||
		strings.Contains(s, "-32601") || strings.Contains(s, "-32602") {
		return ActionFatal
	}

	if strings.Contains(s, "429") || strings.Contains(sLower, "too many requests") ||
		strings.Contains(s, "403") || strings.Contains(sLower, "forbidden") ||
		strings.Contains(sLower, "quota") || strings.Contains(sLower, "rate limit") ||
		strings.Contains(sLower, "count exceeded") ||
		strings.Contains(sLower, "connection refused") || strings.Contains(sLower, "connection reset") ||
		strings.Contains(sLower, "timeout") || errors.Is(err, context.DeadlineExceeded) {
		return ActionFailover
	}

	return ActionFatal
}
