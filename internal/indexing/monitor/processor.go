package monitor

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/walletwatch/internal/core/cursor"
	"github.com/vietddude/walletwatch/internal/core/domain"
	"github.com/vietddude/walletwatch/internal/indexing/emitter"
	"github.com/vietddude/walletwatch/internal/indexing/metrics"
	"github.com/vietddude/walletwatch/internal/indexing/notify"
	"github.com/vietddude/walletwatch/internal/indexing/scanner"
)

// Source is the chain surface one pass needs. *evm.EVMAdapter satisfies it.
type Source interface {
	scanner.BlockSource
	scanner.LogSource
	GetLatestBlock(ctx context.Context) (uint64, error)
	GetBalance(ctx context.Context, addr string) (*big.Int, error)
	GetTokenBalance(ctx context.Context, contract, holder string) (*big.Int, error)
}

// AddressSource lists the deposit addresses tracked for a currency.
type AddressSource interface {
	ListByCurrency(ctx context.Context, currency string) ([]string, error)
}

type chainBackend struct {
	source   Source
	scanners map[domain.MonitorKind]scanner.Scanner
}

// Config wires a Processor.
type Config struct {
	Registry    *Registry
	Checkpoints cursor.Manager
	Addresses   AddressSource
	Emitter     emitter.Emitter
	Notifier    notify.Notifier
	Sweep       *SweepTracker
	// Parallelism bounds ProcessAll. Zero means one goroutine per currency.
	Parallelism int
}

// Processor runs monitoring passes.
type Processor struct {
	cfg    Config
	log    *slog.Logger
	mu     sync.RWMutex
	chains map[domain.ChainID]chainBackend
}

// Plan is the block range a pass would cover.
type Plan struct {
	Currency      string
	Chain         domain.ChainID
	Latest        uint64
	Checkpoint    uint64
	HasCheckpoint bool
	From          uint64
	To            uint64
	Empty         bool
}

// Blocks returns the number of blocks in the plan.
func (p Plan) Blocks() uint64 {
	if p.Empty {
		return 0
	}
	return p.To - p.From + 1
}

// NewProcessor creates a processor. Chains are attached with AddChain.
func NewProcessor(cfg Config) *Processor {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NoopNotifier{}
	}
	return &Processor{
		cfg:    cfg,
		log:    slog.Default().With("component", "monitor"),
		chains: make(map[domain.ChainID]chainBackend),
	}
}

// AddChain registers the chain source and builds its kind dispatch table.
func (p *Processor) AddChain(chain domain.ChainID, src Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chains[chain] = chainBackend{
		source: src,
		scanners: map[domain.MonitorKind]scanner.Scanner{
			domain.KindNative: scanner.NewBlockScanner(src),
			domain.KindToken:  scanner.NewLogScanner(src),
		},
	}
}

func (p *Processor) backend(chain domain.ChainID) (chainBackend, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.chains[chain]
	if !ok {
		return chainBackend{}, &domain.ConfigError{Field: "chains." + string(chain), Reason: "no source registered"}
	}
	return b, nil
}

// Plan computes the range the next pass for currency would scan.
func (p *Processor) Plan(ctx context.Context, currency string) (Plan, error) {
	cfg, err := p.cfg.Registry.Lookup(currency)
	if err != nil {
		return Plan{}, err
	}
	b, err := p.backend(cfg.Chain)
	if err != nil {
		return Plan{}, err
	}
	return p.plan(ctx, cfg, b)
}

func (p *Processor) plan(ctx context.Context, cfg domain.MonitorConfig, b chainBackend) (Plan, error) {
	latestFn := cfg.LatestBlock
	if latestFn == nil {
		latestFn = b.source.GetLatestBlock
	}
	latest, err := latestFn(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("latest block for %s: %w", cfg.Chain, err)
	}
	metrics.ChainLatestBlock.WithLabelValues(string(cfg.Chain)).Set(float64(latest))

	cp, ok, err := p.cfg.Checkpoints.Get(ctx, cfg.Chain, cfg.Currency)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{Currency: cfg.Currency, Chain: cfg.Chain, Latest: latest, Checkpoint: cp.Block, HasCheckpoint: ok}
	return computeRange(plan, cfg), nil
}

// computeRange fills From/To: to = latest - offset, from = checkpoint or the
// fallback window below to. The checkpoint block itself is rescanned, and a
// pass with no block past the checkpoint is empty.
func computeRange(plan Plan, cfg domain.MonitorConfig) Plan {
	offset := cfg.ConfirmationOffset()
	if plan.Latest < offset {
		plan.Empty = true
		return plan
	}
	plan.To = plan.Latest - offset

	if plan.HasCheckpoint {
		if plan.Checkpoint >= plan.To {
			plan.Empty = true
			return plan
		}
		plan.From = plan.Checkpoint
	} else if plan.To+1 > cfg.DefaultWindow {
		plan.From = plan.To - cfg.DefaultWindow + 1
	}
	if cfg.MaxPassBlocks > 0 {
		limit := plan.From + cfg.MaxPassBlocks - 1
		if plan.HasCheckpoint {
			limit++
		}
		plan.To = min(plan.To, limit)
	}
	return plan
}

// Process runs one pass for currency. The checkpoint advances only when
// every event of the range has been emitted.
func (p *Processor) Process(ctx context.Context, currency string) error {
	cfg, err := p.cfg.Registry.Lookup(currency)
	if err != nil {
		return err
	}
	b, err := p.backend(cfg.Chain)
	if err != nil {
		return err
	}

	log := p.log.With("pass_id", uuid.NewString(), "chain", cfg.Chain, "currency", cfg.Currency)
	start := time.Now()
	defer func() {
		metrics.PassDuration.WithLabelValues(string(cfg.Chain), cfg.Currency).Observe(time.Since(start).Seconds())
	}()

	plan, err := p.plan(ctx, cfg, b)
	if err != nil {
		p.passFailed(cfg, err)
		return err
	}
	p.checkLag(ctx, cfg, plan, log)
	if plan.Empty {
		log.Debug("Nothing to scan", "latest", plan.Latest, "checkpoint", plan.Checkpoint)
		return nil
	}

	tracked, err := p.trackedSet(ctx, cfg, log)
	if err != nil {
		p.passFailed(cfg, err)
		return err
	}

	log.Debug("Pass started", "from_block", plan.From, "to_block", plan.To, "tracked", tracked.Len())

	var emitted int
	for ev, scanErr := range b.scanners[cfg.Kind].Scan(ctx, cfg, tracked, plan.From, plan.To) {
		if scanErr != nil {
			p.passFailed(cfg, scanErr)
			log.Warn("Pass aborted", "from_block", plan.From, "to_block", plan.To, "emitted", emitted, "error", scanErr)
			return scanErr
		}
		if err := p.cfg.Emitter.Emit(ctx, ev); err != nil {
			p.passFailed(cfg, err)
			return fmt.Errorf("emit %s: %w", ev.Key(), err)
		}
		if p.cfg.Sweep != nil {
			p.cfg.Sweep.Observe(ev)
		}
		metrics.TransfersDetected.WithLabelValues(string(cfg.Chain), cfg.Currency, string(ev.Direction)).Inc()
		emitted++
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.cfg.Checkpoints.Advance(ctx, cfg.Chain, cfg.Currency, plan.To); err != nil {
		p.passFailed(cfg, err)
		return err
	}
	metrics.BlocksScanned.WithLabelValues(string(cfg.Chain), cfg.Currency).Add(float64(plan.Blocks()))

	log.Info("Pass completed",
		"from_block", plan.From,
		"to_block", plan.To,
		"events", emitted,
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// ProcessAll runs one pass for every registered currency concurrently and
// joins the failures.
func (p *Processor) ProcessAll(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	if p.cfg.Parallelism > 0 {
		g.SetLimit(p.cfg.Parallelism)
	}
	for _, currency := range p.cfg.Registry.Currencies() {
		g.Go(func() error {
			if err := p.Process(ctx, currency); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", currency, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// ScanRange yields the events of [from, to] for currency without touching
// the checkpoint or the emitter.
func (p *Processor) ScanRange(ctx context.Context, currency string, from, to uint64) (iter.Seq2[domain.TransferEvent, error], error) {
	cfg, err := p.cfg.Registry.Lookup(currency)
	if err != nil {
		return nil, err
	}
	b, err := p.backend(cfg.Chain)
	if err != nil {
		return nil, err
	}
	tracked, err := p.trackedSet(ctx, cfg, p.log.With("currency", currency))
	if err != nil {
		return nil, err
	}
	return b.scanners[cfg.Kind].Scan(ctx, cfg, tracked, from, to), nil
}

// Balance returns the on-chain balance of addr in currency units.
func (p *Processor) Balance(ctx context.Context, currency, addr string) (decimal.Decimal, error) {
	cfg, err := p.cfg.Registry.Lookup(currency)
	if err != nil {
		return decimal.Zero, err
	}
	b, err := p.backend(cfg.Chain)
	if err != nil {
		return decimal.Zero, err
	}
	var raw *big.Int
	switch cfg.Kind {
	case domain.KindToken:
		raw, err = b.source.GetTokenBalance(ctx, cfg.ContractAddress, addr)
	default:
		raw, err = b.source.GetBalance(ctx, addr)
	}
	if err != nil {
		return decimal.Zero, err
	}
	return domain.ScaleAmount(raw, cfg.Decimals), nil
}

// trackedSet is the safe address plus every valid deposit address.
func (p *Processor) trackedSet(ctx context.Context, cfg domain.MonitorConfig, log *slog.Logger) (domain.AddressSet, error) {
	var addrs []string
	if p.cfg.Addresses != nil {
		listed, err := p.cfg.Addresses.ListByCurrency(ctx, cfg.Currency)
		if err != nil {
			return nil, fmt.Errorf("list addresses: %w", err)
		}
		addrs = make([]string, 0, len(listed)+1)
		for _, a := range listed {
			if cfg.ValidateAddress != nil && !cfg.ValidateAddress(a) {
				log.Warn("Skipping invalid tracked address", "address", a)
				continue
			}
			addrs = append(addrs, a)
		}
	}
	if cfg.SafeAddress != "" {
		addrs = append(addrs, cfg.SafeAddress)
	}
	return domain.NewAddressSet(addrs...), nil
}

func (p *Processor) checkLag(ctx context.Context, cfg domain.MonitorConfig, plan Plan, log *slog.Logger) {
	if !plan.HasCheckpoint || plan.Latest <= plan.Checkpoint {
		return
	}
	lag := plan.Latest - plan.Checkpoint
	if lag <= cfg.BlocksDiffAlert {
		return
	}
	log.Warn("Checkpoint lagging behind chain", "lag", lag, "threshold", cfg.BlocksDiffAlert)
	alert := notify.NewAlert(notify.AlertTypeLag, string(cfg.Chain), "Scanner lag",
		fmt.Sprintf("%s %s scanner is %d blocks behind", cfg.Chain, cfg.Currency, lag))
	alert.Fields = map[string]string{
		"latest":     strconv.FormatUint(plan.Latest, 10),
		"checkpoint": strconv.FormatUint(plan.Checkpoint, 10),
	}
	if err := p.cfg.Notifier.Send(ctx, alert); err != nil {
		log.Warn("Failed to send lag alert", "error", err)
	}
}

func (p *Processor) passFailed(cfg domain.MonitorConfig, err error) {
	metrics.PassErrors.WithLabelValues(string(cfg.Chain), cfg.Currency, errorKind(err)).Inc()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, domain.ErrChainUnavailable):
		return "chain_unavailable"
	case errors.Is(err, domain.ErrBlockFetch):
		return "block_fetch"
	case errors.Is(err, domain.ErrLogQuery):
		return "log_query"
	case errors.Is(err, domain.ErrStateContention):
		return "contention"
	default:
		return "other"
	}
}
