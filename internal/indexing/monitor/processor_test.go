package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/walletwatch/internal/core/cursor"
	"github.com/vietddude/walletwatch/internal/core/domain"
	"github.com/vietddude/walletwatch/internal/indexing/notify"
	"github.com/vietddude/walletwatch/internal/infra/chain/evm"
	"github.com/vietddude/walletwatch/internal/infra/storage/memory"
)

const (
	deposit  = "0x00000000000000000000000000000000000000aa"
	safe     = "0x00000000000000000000000000000000000000ee"
	outsider = "0x00000000000000000000000000000000000000ff"
	usdt     = "0x00000000000000000000000000000000000000cc"
)

var oneEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// fakeChain serves a deterministic chain: every block n holds one transfer
// of 1 ETX from outsider to deposit, plus a matching USDT log.
type fakeChain struct {
	mu        sync.Mutex
	latest    uint64
	failBlock uint64
	balance   *big.Int
	fetched   []uint64
}

func (f *fakeChain) GetLatestBlock(ctx context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeChain) GetBlock(ctx context.Context, n uint64) (*evm.Block, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, n)
	f.mu.Unlock()
	if f.failBlock != 0 && n == f.failBlock {
		return nil, errors.New("connection reset")
	}
	to := deposit
	return &evm.Block{
		Number:    hexutil.Uint64(n),
		Hash:      fmt.Sprintf("0xb%d", n),
		Timestamp: hexutil.Uint64(1_700_000_000 + n),
		Transactions: []evm.Transaction{
			{Hash: fmt.Sprintf("0xt%d", n), From: outsider, To: &to, Value: (*hexutil.Big)(oneEther)},
		},
	}, nil
}

func (f *fakeChain) GetLogs(ctx context.Context, filter evm.LogFilter) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for n := filter.FromBlock; n <= filter.ToBlock; n++ {
		b, _ := json.Marshal(map[string]any{
			"address":         usdt,
			"topics":          []string{evm.TransferTopic.Hex(), pad(outsider), pad(deposit)},
			"data":            fmt.Sprintf("0x%064x", 5_000_000),
			"blockNumber":     hexutil.EncodeUint64(n),
			"blockHash":       fmt.Sprintf("0xb%d", n),
			"transactionHash": fmt.Sprintf("0xt%d", n),
			"logIndex":        "0x0",
			"removed":         false,
		})
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeChain) GetBalance(ctx context.Context, addr string) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeChain) GetTokenBalance(ctx context.Context, contract, holder string) (*big.Int, error) {
	return f.balance, nil
}

func pad(addr string) string {
	return "0x" + strings.Repeat("0", 24) + strings.TrimPrefix(addr, "0x")
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []domain.TransferEvent
	failAt int
}

func (r *recordingEmitter) Emit(ctx context.Context, ev domain.TransferEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && len(r.events)+1 == r.failAt {
		return errors.New("sink down")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEmitter) Close() error { return nil }

func (r *recordingEmitter) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Key()
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (r *recordingNotifier) Send(ctx context.Context, a notify.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

type harness struct {
	chain       *fakeChain
	emitter     *recordingEmitter
	notifier    *recordingNotifier
	checkpoints *cursor.DefaultManager
	store       *memory.MemoryStorage
	proc        *Processor
}

func etxConfig() domain.MonitorConfig {
	return domain.MonitorConfig{
		Currency: "ETX", Chain: domain.ChainETX, Kind: domain.KindNative, Decimals: 18,
		SafeAddress: safe, DefaultWindow: 10, BlocksDiffAlert: 50,
		AccumulationTimeout: time.Hour, DeltaAmount: decimal.NewFromInt(1),
		ValidateAddress: evm.IsAddress,
	}
}

func usdtConfig() domain.MonitorConfig {
	return domain.MonitorConfig{
		Currency: "USDT", Chain: domain.ChainETX, Kind: domain.KindToken, Decimals: 6,
		ContractAddress: usdt, SafeAddress: safe, DefaultWindow: 10, MaxLogRange: 4,
		ValidateAddress: evm.IsAddress,
	}
}

func newHarness(t *testing.T, latest uint64, configs ...domain.MonitorConfig) *harness {
	t.Helper()
	if len(configs) == 0 {
		configs = []domain.MonitorConfig{etxConfig()}
	}
	reg, err := NewRegistry(configs...)
	require.NoError(t, err)

	store := memory.NewMemoryStorage()
	for _, c := range configs {
		require.NoError(t, store.Add(context.Background(), c.Currency, deposit, "not-an-address"))
	}

	h := &harness{
		chain:       &fakeChain{latest: latest, balance: oneEther},
		emitter:     &recordingEmitter{},
		notifier:    &recordingNotifier{},
		checkpoints: cursor.NewManager(store),
		store:       store,
	}
	h.proc = NewProcessor(Config{
		Registry:    reg,
		Checkpoints: h.checkpoints,
		Addresses:   store,
		Emitter:     h.emitter,
		Notifier:    h.notifier,
		Sweep:       NewSweepTracker(reg),
	})
	h.proc.AddChain(domain.ChainETX, h.chain)
	return h
}

func (h *harness) checkpoint(t *testing.T, currency string) (uint64, bool) {
	t.Helper()
	cp, ok, err := h.checkpoints.Get(context.Background(), domain.ChainETX, currency)
	require.NoError(t, err)
	return cp.Block, ok
}

func TestComputeRange(t *testing.T) {
	base := domain.MonitorConfig{DefaultWindow: 1000, BlockTime: time.Second}

	tests := []struct {
		name       string
		cfg        func(c domain.MonitorConfig) domain.MonitorConfig
		latest     uint64
		checkpoint *uint64
		wantFrom   uint64
		wantTo     uint64
		wantEmpty  bool
	}{
		{name: "resume after checkpoint", latest: 1200, checkpoint: ptr(1100), wantFrom: 1100, wantTo: 1200},
		{name: "first run uses fallback window", latest: 5000, wantFrom: 4001, wantTo: 5000},
		{name: "short chain starts at genesis", latest: 300, wantFrom: 0, wantTo: 300},
		{name: "caught up", latest: 1200, checkpoint: ptr(1200), wantEmpty: true},
		{name: "one block past checkpoint", latest: 1201, checkpoint: ptr(1200), wantFrom: 1200, wantTo: 1201},
		{name: "checkpoint ahead of confirmed head", latest: 1200, checkpoint: ptr(1300), wantEmpty: true},
		{
			name: "single block cap still progresses", latest: 5000, checkpoint: ptr(100),
			cfg: func(c domain.MonitorConfig) domain.MonitorConfig {
				c.MaxPassBlocks = 1
				return c
			},
			wantFrom: 100, wantTo: 101,
		},
		{
			name: "offset blocks and seconds", latest: 1200, checkpoint: ptr(1100),
			cfg: func(c domain.MonitorConfig) domain.MonitorConfig {
				c.OffsetBlocks = 5
				c.OffsetSeconds = 10 * time.Second
				return c
			},
			wantFrom: 1100, wantTo: 1185,
		},
		{
			name: "head below offset", latest: 3,
			cfg: func(c domain.MonitorConfig) domain.MonitorConfig {
				c.OffsetBlocks = 12
				return c
			},
			wantEmpty: true,
		},
		{
			name: "pass cap", latest: 5000, checkpoint: ptr(100),
			cfg: func(c domain.MonitorConfig) domain.MonitorConfig {
				c.MaxPassBlocks = 500
				return c
			},
			wantFrom: 100, wantTo: 600,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			if tt.cfg != nil {
				cfg = tt.cfg(cfg)
			}
			plan := Plan{Latest: tt.latest}
			if tt.checkpoint != nil {
				plan.Checkpoint, plan.HasCheckpoint = *tt.checkpoint, true
			}
			got := computeRange(plan, cfg)
			assert.Equal(t, tt.wantEmpty, got.Empty)
			if !tt.wantEmpty {
				assert.Equal(t, tt.wantFrom, got.From)
				assert.Equal(t, tt.wantTo, got.To)
			}
		})
	}
}

func ptr(v uint64) *uint64 { return &v }

func TestProcess_NativeAdvancesCheckpoint(t *testing.T) {
	h := newHarness(t, 105)
	ctx := context.Background()
	require.NoError(t, h.checkpoints.Advance(ctx, domain.ChainETX, "ETX", 100))

	require.NoError(t, h.proc.Process(ctx, "ETX"))

	assert.Equal(t, []string{"0xt100:in", "0xt101:in", "0xt102:in", "0xt103:in", "0xt104:in", "0xt105:in"}, h.emitter.keys())
	cp, _ := h.checkpoint(t, "ETX")
	assert.Equal(t, uint64(105), cp)

	ev := h.emitter.events[0]
	assert.Equal(t, deposit, ev.TrackedAddress)
	assert.Equal(t, outsider, ev.Counterparty)
	assert.True(t, ev.Value.Equal(decimal.NewFromInt(1)))
}

func TestProcess_FirstRunUsesDefaultWindow(t *testing.T) {
	h := newHarness(t, 50)
	require.NoError(t, h.proc.Process(context.Background(), "ETX"))

	assert.Len(t, h.emitter.events, 10)
	assert.Equal(t, uint64(41), h.emitter.events[0].BlockNumber)
	cp, ok := h.checkpoint(t, "ETX")
	assert.True(t, ok)
	assert.Equal(t, uint64(50), cp)
}

func TestProcess_FetchFailureKeepsCheckpoint(t *testing.T) {
	h := newHarness(t, 105)
	ctx := context.Background()
	require.NoError(t, h.checkpoints.Advance(ctx, domain.ChainETX, "ETX", 100))
	h.chain.failBlock = 103

	err := h.proc.Process(ctx, "ETX")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBlockFetch))

	var fetchErr *domain.BlockFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, uint64(103), fetchErr.Block)

	assert.Equal(t, []string{"0xt100:in", "0xt101:in", "0xt102:in"}, h.emitter.keys())
	cp, _ := h.checkpoint(t, "ETX")
	assert.Equal(t, uint64(100), cp)
}

func TestProcess_EmitFailureKeepsCheckpoint(t *testing.T) {
	h := newHarness(t, 105)
	ctx := context.Background()
	require.NoError(t, h.checkpoints.Advance(ctx, domain.ChainETX, "ETX", 100))
	h.emitter.failAt = 2

	require.Error(t, h.proc.Process(ctx, "ETX"))
	cp, _ := h.checkpoint(t, "ETX")
	assert.Equal(t, uint64(100), cp)
}

func TestProcess_CancelledPassDoesNotAdvance(t *testing.T) {
	h := newHarness(t, 105)
	require.NoError(t, h.checkpoints.Advance(context.Background(), domain.ChainETX, "ETX", 100))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.proc.Process(ctx, "ETX")
	assert.ErrorIs(t, err, context.Canceled)
	cp, _ := h.checkpoint(t, "ETX")
	assert.Equal(t, uint64(100), cp)
}

func TestProcess_DeterministicReplay(t *testing.T) {
	h := newHarness(t, 120)
	ctx := context.Background()
	require.NoError(t, h.checkpoints.Advance(ctx, domain.ChainETX, "ETX", 110))

	require.NoError(t, h.proc.Process(ctx, "ETX"))
	first := h.emitter.keys()

	require.NoError(t, h.checkpoints.Reset(ctx, domain.ChainETX, "ETX", 110))
	h.emitter.events = nil
	require.NoError(t, h.proc.Process(ctx, "ETX"))

	assert.Equal(t, first, h.emitter.keys())
}

func TestProcess_EmptyRangeIsNoop(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	require.NoError(t, h.checkpoints.Advance(ctx, domain.ChainETX, "ETX", 100))

	require.NoError(t, h.proc.Process(ctx, "ETX"))
	assert.Empty(t, h.emitter.events)
	assert.Empty(t, h.chain.fetched)
}

func TestProcess_TokenWindows(t *testing.T) {
	h := newHarness(t, 110, usdtConfig())
	ctx := context.Background()
	require.NoError(t, h.checkpoints.Advance(ctx, domain.ChainETX, "USDT", 100))

	require.NoError(t, h.proc.Process(ctx, "USDT"))

	require.Len(t, h.emitter.events, 11)
	assert.Equal(t, "0xt100:0:in", h.emitter.events[0].Key())
	assert.True(t, h.emitter.events[0].Value.Equal(decimal.NewFromInt(5)))
	cp, _ := h.checkpoint(t, "USDT")
	assert.Equal(t, uint64(110), cp)
}

func TestProcess_UnknownCurrency(t *testing.T) {
	h := newHarness(t, 100)
	err := h.proc.Process(context.Background(), "DOGE")
	assert.ErrorIs(t, err, domain.ErrUnknownCurrency)
}

func TestProcess_LagAlert(t *testing.T) {
	h := newHarness(t, 200)
	ctx := context.Background()
	require.NoError(t, h.checkpoints.Advance(ctx, domain.ChainETX, "ETX", 100))

	require.NoError(t, h.proc.Process(ctx, "ETX"))

	require.Len(t, h.notifier.alerts, 1)
	alert := h.notifier.alerts[0]
	assert.Equal(t, notify.AlertTypeLag, alert.Type)
	assert.Equal(t, "100", alert.Fields["checkpoint"])
}

func TestProcessAll(t *testing.T) {
	h := newHarness(t, 110, etxConfig(), usdtConfig())
	ctx := context.Background()
	require.NoError(t, h.checkpoints.Advance(ctx, domain.ChainETX, "ETX", 100))
	require.NoError(t, h.checkpoints.Advance(ctx, domain.ChainETX, "USDT", 100))

	require.NoError(t, h.proc.ProcessAll(ctx))

	for _, c := range []string{"ETX", "USDT"} {
		cp, _ := h.checkpoint(t, c)
		assert.Equal(t, uint64(110), cp, c)
	}
	assert.Len(t, h.emitter.events, 22)
}

func TestProcessAll_JoinsFailures(t *testing.T) {
	h := newHarness(t, 110, etxConfig(), usdtConfig())
	ctx := context.Background()
	require.NoError(t, h.checkpoints.Advance(ctx, domain.ChainETX, "ETX", 100))
	require.NoError(t, h.checkpoints.Advance(ctx, domain.ChainETX, "USDT", 100))
	h.chain.failBlock = 105

	err := h.proc.ProcessAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ETX")

	cp, _ := h.checkpoint(t, "USDT")
	assert.Equal(t, uint64(110), cp)
}

func TestPlan(t *testing.T) {
	h := newHarness(t, 500)
	plan, err := h.proc.Plan(context.Background(), "ETX")
	require.NoError(t, err)
	assert.False(t, plan.HasCheckpoint)
	assert.Equal(t, uint64(491), plan.From)
	assert.Equal(t, uint64(500), plan.To)
	assert.Equal(t, uint64(10), plan.Blocks())
}

func TestBalance(t *testing.T) {
	h := newHarness(t, 100, etxConfig(), usdtConfig())
	bal, err := h.proc.Balance(context.Background(), "ETX", deposit)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(1)))

	bal, err = h.proc.Balance(context.Background(), "USDT", deposit)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(1_000_000_000_000)))
}

func TestScanRange_LeavesCheckpoint(t *testing.T) {
	h := newHarness(t, 500)
	seq, err := h.proc.ScanRange(context.Background(), "ETX", 10, 12)
	require.NoError(t, err)

	var keys []string
	for ev, err := range seq {
		require.NoError(t, err)
		keys = append(keys, ev.Key())
	}
	assert.Equal(t, []string{"0xt10:in", "0xt11:in", "0xt12:in"}, keys)
	assert.Empty(t, h.emitter.events)
	_, ok := h.checkpoint(t, "ETX")
	assert.False(t, ok)
}
