// Package control wires configuration into a running monitor: storage,
// endpoint pools, chain clients, the monitoring processor, the scheduler and
// the health server.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/walletwatch/internal/core/config"
	"github.com/vietddude/walletwatch/internal/core/cursor"
	"github.com/vietddude/walletwatch/internal/core/domain"
	"github.com/vietddude/walletwatch/internal/indexing/coldstats"
	"github.com/vietddude/walletwatch/internal/indexing/emitter"
	"github.com/vietddude/walletwatch/internal/indexing/health"
	"github.com/vietddude/walletwatch/internal/indexing/monitor"
	"github.com/vietddude/walletwatch/internal/indexing/notify"
	"github.com/vietddude/walletwatch/internal/indexing/scheduler"
	"github.com/vietddude/walletwatch/internal/indexing/throttle"
	"github.com/vietddude/walletwatch/internal/infra/chain/evm"
	"github.com/vietddude/walletwatch/internal/infra/rpc"
	"github.com/vietddude/walletwatch/internal/infra/rpc/provider"
	"github.com/vietddude/walletwatch/internal/infra/rpc/routing"
	"github.com/vietddude/walletwatch/internal/infra/storage"
	"github.com/vietddude/walletwatch/internal/infra/storage/postgres"
)

// Watcher is the main application struct that manages the monitor lifecycle.
type Watcher struct {
	cfg          *config.AppConfig
	store        storage.StateStore
	addresses    storage.AddressRepository
	db           *postgres.DB
	pool         *routing.EndpointPool
	slow         *routing.HealthMonitor
	router       *routing.Router
	clients      map[domain.ChainID]*rpc.Client
	adapters     map[domain.ChainID]*chainSource
	registry     *monitor.Registry
	checkpoints  *cursor.DefaultManager
	processor    *monitor.Processor
	sweep        *monitor.SweepTracker
	cold         *coldstats.Collector
	emitter      emitter.Emitter
	notifier     notify.Notifier
	scheduler    *scheduler.Scheduler
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger
}

// Options tunes which outputs a Watcher opens.
type Options struct {
	// NoKafka keeps events in the log only. Used by one-shot CLI commands.
	NoKafka bool
}

// NewWatcher creates a new Watcher instance with all dependencies initialized.
func NewWatcher(ctx context.Context, cfg *config.AppConfig, opts Options) (*Watcher, error) {
	w := &Watcher{
		cfg:      cfg,
		clients:  make(map[domain.ChainID]*rpc.Client),
		adapters: make(map[domain.ChainID]*chainSource),
		log:      slog.Default().With("component", "watcher"),
	}

	// 1. Initialize Storage
	if err := w.openStorage(ctx); err != nil {
		return nil, err
	}
	if err := w.build(ctx, opts); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) build(ctx context.Context, opts Options) error {
	cfg := w.cfg

	for currency, addrs := range cfg.Addresses {
		if err := w.addresses.Add(ctx, currency, addrs...); err != nil {
			return fmt.Errorf("failed to seed addresses for %s: %w", currency, err)
		}
	}

	// 2. Notifications
	notifiers := []notify.Notifier{notify.NewLogNotifier(slog.Default())}
	if cfg.Notify.Telegram.Token != "" {
		notifiers = append(notifiers, notify.NewTelegramNotifier(cfg.Notify.Telegram.BaseURL, cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID))
	}
	if cfg.Notify.Webhook.URL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notify.Webhook.URL))
	}
	w.notifier = notify.NewMultiNotifier(cfg.Notify.Cooldown, slog.Default(), notifiers...)

	// 3. Endpoint pool, slow counters and one provider per endpoint
	pool, err := routing.NewEndpointPool(w.store, cfg.EndpointURLs())
	if err != nil {
		return err
	}
	w.pool = pool

	healthOpts := make([]routing.HealthOption, 0, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		healthOpts = append(healthOpts, routing.WithChainThreshold(ch.ChainID, ch.SlowThreshold))
	}
	w.slow = routing.NewHealthMonitor(w.store, healthOpts...)

	w.router = routing.NewRouter()
	for _, ch := range cfg.Chains {
		for _, url := range ch.Endpoints {
			w.router.AddProvider(provider.NewHTTPProvider(
				domain.Endpoint{Chain: ch.ChainID, URL: url},
				provider.HTTPConfig{RateLimit: ch.RateLimit, Burst: ch.Burst, SlowThreshold: ch.SlowThreshold},
			))
		}
		client := rpc.NewClient(ch.ChainID, w.pool, w.slow, w.router,
			rpc.WithCallTimeout(ch.CallTimeout),
			rpc.WithRotationHook(w.onRotate),
		)
		w.clients[ch.ChainID] = client
		adapter := evm.NewEVMAdapter(ch.ChainID, client)
		w.adapters[ch.ChainID] = &chainSource{
			EVMAdapter: adapter,
			head:       throttle.NewHeadCache(adapter, ch.BlockTime/2),
		}
	}

	// 4. Registry and checkpoints
	monitors, err := cfg.MonitorConfigs()
	if err != nil {
		return err
	}
	if w.registry, err = monitor.NewRegistry(monitors...); err != nil {
		return err
	}
	w.checkpoints = cursor.NewManager(w.store)
	w.sweep = monitor.NewSweepTracker(w.registry)

	// 5. Emitters
	safe := make(map[string]string)
	for _, m := range monitors {
		safe[m.Currency] = m.SafeAddress
	}
	w.cold = coldstats.NewCollector(w.store, safe)
	sinks := emitter.Multi{emitter.NewLogEmitter(), w.cold}
	if len(cfg.Kafka.Brokers) > 0 && !opts.NoKafka {
		kafka, err := emitter.NewKafkaEmitter(cfg.Kafka)
		if err != nil {
			return err
		}
		sinks = append(sinks, kafka)
	}
	w.emitter = sinks

	// 6. Processor
	w.processor = monitor.NewProcessor(monitor.Config{
		Registry:    w.registry,
		Checkpoints: w.checkpoints,
		Addresses:   w.addresses,
		Emitter:     w.emitter,
		Notifier:    w.notifier,
		Sweep:       w.sweep,
	})
	for chain, adapter := range w.adapters {
		w.processor.AddChain(chain, adapter)
	}

	// 7. Scheduler and health
	w.scheduler = scheduler.New(slog.Default())
	targets := make([]health.Target, 0, len(monitors))
	for _, m := range monitors {
		targets = append(targets, health.Target{Chain: m.Chain, Currency: m.Currency, LagAlert: m.BlocksDiffAlert})
	}
	w.healthMon = health.NewMonitor(targets, w.checkpoints, w.pool, w.slow, &MultiChainFetcher{adapters: w.adapters})
	w.healthMon.SetProviderStats(func(chain domain.ChainID) map[string]provider.HealthStatus {
		if c, ok := w.clients[chain]; ok {
			return c.GetProviderStats()
		}
		return nil
	})
	w.healthServer = health.NewServer(w.healthMon, w.scheduler, fmt.Sprintf(":%d", cfg.Server.Port))

	return w.registerJobs()
}

func (w *Watcher) registerJobs() error {
	for _, currency := range w.registry.Currencies() {
		if err := w.scheduler.Register(scheduler.Job{
			Name:    "pass:" + currency,
			Spec:    w.cfg.Schedule.Pass,
			Timeout: w.cfg.Schedule.PassTimeout,
			Run: func(ctx context.Context) error {
				return w.processor.Process(ctx, currency)
			},
		}); err != nil {
			return err
		}
	}
	if err := w.scheduler.Register(scheduler.Job{
		Name:    "sweep",
		Spec:    w.cfg.Schedule.Sweep,
		Timeout: time.Minute,
		Run:     w.checkSweeps,
	}); err != nil {
		return err
	}
	if len(w.cold.Currencies()) == 0 {
		return nil
	}
	return w.scheduler.Register(scheduler.Job{
		Name:    "cold_stats",
		Spec:    w.cfg.Schedule.ColdStats,
		Timeout: time.Minute,
		Run:     w.reportColdStats,
	})
}

// Start starts the watcher and all its components.
func (w *Watcher) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := w.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if w.db != nil {
		w.db.StartMetricsCollector(ctx)
	}

	w.scheduler.Start()
	w.log.Info("Watcher started",
		"chains", len(w.cfg.Chains),
		"currencies", len(w.registry.Currencies()),
		"store", w.cfg.Store.Backend,
		"port", w.cfg.Server.Port)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop(ctx context.Context) error {
	w.log.Info("Stopping Watcher...")

	w.scheduler.Stop()
	err := w.healthServer.Stop(ctx)
	return errors.Join(err, w.Close())
}

// Close releases clients and storage without touching the scheduler.
func (w *Watcher) Close() error {
	var errs []error
	if w.emitter != nil {
		errs = append(errs, w.emitter.Close())
	}
	if w.router != nil {
		errs = append(errs, w.router.Close())
	}
	if w.store != nil {
		errs = append(errs, w.store.Close())
	}
	if w.db != nil && !w.storeOwnsDB() {
		errs = append(errs, w.db.Close())
	}
	return errors.Join(errs...)
}

// Processor returns the monitoring processor.
func (w *Watcher) Processor() *monitor.Processor { return w.processor }

// Registry returns the currency registry.
func (w *Watcher) Registry() *monitor.Registry { return w.registry }

// Checkpoints returns the checkpoint manager.
func (w *Watcher) Checkpoints() cursor.Manager { return w.checkpoints }

// Pool returns the shared endpoint pool.
func (w *Watcher) Pool() *routing.EndpointPool { return w.pool }

// SlowCounters returns the shared slow call monitor.
func (w *Watcher) SlowCounters() *routing.HealthMonitor { return w.slow }

// Client returns the RPC client of a chain.
func (w *Watcher) Client(chain domain.ChainID) (*rpc.Client, error) {
	c, ok := w.clients[chain]
	if !ok {
		return nil, &domain.ConfigError{Field: "chains." + string(chain), Reason: "not configured"}
	}
	return c, nil
}

// Addresses returns the tracked address repository.
func (w *Watcher) Addresses() storage.AddressRepository { return w.addresses }

// Health returns the health monitor.
func (w *Watcher) Health() *health.Monitor { return w.healthMon }

// Scheduler returns the job scheduler.
func (w *Watcher) Scheduler() *scheduler.Scheduler { return w.scheduler }

func (w *Watcher) onRotate(ev rpc.RotationEvent) {
	msg := fmt.Sprintf("%s RPC slow, switching to %s", ev.Chain, ev.To.URL)
	if ev.Reason != rpc.ReasonSlow {
		msg = fmt.Sprintf("%s RPC %s failure, switching to %s", ev.Chain, ev.Reason, ev.To.URL)
	}
	alert := notify.NewAlert(notify.AlertTypeRotation, string(ev.Chain), "RPC endpoint rotated", msg)
	alert.Fields = map[string]string{"from": ev.From.URL, "to": ev.To.URL, "reason": ev.Reason}

	// Delivery must not hold up the RPC call that triggered the rotation.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := w.notifier.Send(ctx, alert); err != nil {
			w.log.Warn("Rotation notification failed", "chain", ev.Chain, "error", err)
		}
	}()
}

func (w *Watcher) checkSweeps(ctx context.Context) error {
	due, err := w.sweep.Due(ctx, time.Now(), w.processor.Balance)
	for _, c := range due {
		alert := notify.NewAlert(notify.AlertTypeSweep, "", "Sweep due",
			fmt.Sprintf("%s deposit %s holds %s, ready to sweep", c.Currency, c.Address, c.Balance))
		alert.Fields = map[string]string{"last_inbound": c.LastInbound.Format(time.RFC3339)}
		if sendErr := w.notifier.Send(ctx, alert); sendErr != nil {
			w.log.Warn("Sweep notification failed", "currency", c.Currency, "error", sendErr)
		}
	}
	return err
}

func (w *Watcher) reportColdStats(ctx context.Context) error {
	var errs []error
	for _, currency := range w.cold.Currencies() {
		cfg, err := w.registry.Lookup(currency)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		balance, err := w.processor.Balance(ctx, currency, cfg.SafeAddress)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s cold balance: %w", currency, err))
			continue
		}
		stats, err := w.cold.Report(ctx, currency, balance)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if stats.First {
			continue
		}
		alert := notify.NewAlert(notify.AlertTypeColdStats, string(cfg.Chain), "Cold wallet report",
			fmt.Sprintf("%s cold_balance=%s cold_out=%s cold_delta=%s", currency, stats.Balance, stats.ColdOut, stats.ColdDelta))
		alert.Fields = map[string]string{
			"prev_balance": stats.PrevBalance.String(),
			"topups":       stats.Topups.String(),
			"since":        stats.Since.Format(time.RFC3339),
		}
		if err := w.notifier.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// chainSource serves the chain head from a short-lived cache shared by every
// currency on the chain and the health monitor.
type chainSource struct {
	*evm.EVMAdapter
	head *throttle.HeadCache
}

func (s *chainSource) GetLatestBlock(ctx context.Context) (uint64, error) {
	return s.head.GetLatestBlock(ctx)
}

// MultiChainFetcher adapts chain adapters to the health BlockHeightFetcher interface.
type MultiChainFetcher struct {
	adapters map[domain.ChainID]*chainSource
}

func (f *MultiChainFetcher) GetLatestHeight(ctx context.Context, chain domain.ChainID) (uint64, error) {
	if adapter, ok := f.adapters[chain]; ok {
		return adapter.GetLatestBlock(ctx)
	}
	return 0, fmt.Errorf("chain not found: %s", chain)
}
