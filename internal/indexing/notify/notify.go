// Package notify delivers operator notifications: endpoint rotations,
// checkpoint lag, sweep reminders and cold wallet reports.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/walletwatch/internal/indexing/metrics"
)

// AlertType categorizes the kind of notification.
type AlertType string

const (
	AlertTypeRotation  AlertType = "ENDPOINT_ROTATION"
	AlertTypeLag       AlertType = "CHECKPOINT_LAG"
	AlertTypeSweep     AlertType = "SWEEP_DUE"
	AlertTypeColdStats AlertType = "COLD_STATS"
	AlertTypePassError AlertType = "PASS_FAILED"
)

// Alert represents a single notification.
type Alert struct {
	ID      string
	Type    AlertType
	Chain   string
	Title   string
	Message string
	Fields  map[string]string
}

// NewAlert stamps a fresh ID on an alert.
func NewAlert(typ AlertType, chain, title, message string) Alert {
	return Alert{ID: uuid.NewString(), Type: typ, Chain: chain, Title: title, Message: message}
}

// Text renders the alert as plain text for chat channels.
func (a Alert) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", a.Type, a.Message)
	if len(a.Fields) > 0 {
		keys := make([]string, 0, len(a.Fields))
		for k := range a.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "\n- %s: %s", k, a.Fields[k])
		}
	}
	return sb.String()
}

// Notifier is the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// MultiNotifier fans out to every channel and suppresses repeats of the
// same alert within the cooldown window.
type MultiNotifier struct {
	notifiers []Notifier
	cooldown  time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewMultiNotifier creates a new multi-channel notifier with cooldown.
func NewMultiNotifier(cooldown time.Duration, logger *slog.Logger, notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{
		notifiers: notifiers,
		cooldown:  cooldown,
		logger:    logger.With("component", "notifier"),
		lastSent:  make(map[string]time.Time),
	}
}

func cooldownKey(a Alert) string {
	return fmt.Sprintf("%s:%s:%s", a.Type, a.Chain, a.Message)
}

// Send dispatches alert to all channels, respecting cooldown.
func (m *MultiNotifier) Send(ctx context.Context, alert Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	key := cooldownKey(alert)

	m.mu.Lock()
	if last, ok := m.lastSent[key]; ok && time.Since(last) < m.cooldown {
		m.mu.Unlock()
		m.logger.Debug("notification suppressed by cooldown", "key", key)
		metrics.NotificationsSent.WithLabelValues(string(alert.Type), "suppressed").Inc()
		return nil
	}
	m.lastSent[key] = time.Now()
	m.mu.Unlock()

	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, alert); err != nil {
			m.logger.Warn("notification send failed", "type", alert.Type, "error", err)
			metrics.NotificationsSent.WithLabelValues(string(alert.Type), "failed").Inc()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.NotificationsSent.WithLabelValues(string(alert.Type), "sent").Inc()
	}
	return firstErr
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (l *LogNotifier) Send(ctx context.Context, alert Alert) error {
	l.logger.WarnContext(ctx, alert.Message, "type", alert.Type, "chain", alert.Chain, "id", alert.ID)
	return nil
}

// NoopNotifier does nothing. Used when no channels are configured.
type NoopNotifier struct{}

func (NoopNotifier) Send(_ context.Context, _ Alert) error { return nil }
