package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/walletwatch/internal/core/domain"
	"github.com/vietddude/walletwatch/internal/infra/chain/evm"
)

const (
	tracked1 = "0x00000000000000000000000000000000000000aa"
	tracked2 = "0x00000000000000000000000000000000000000ab"
	outsider = "0x00000000000000000000000000000000000000ff"
	usdt     = "0x00000000000000000000000000000000000000cc"
)

var oneEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type fakeBlocks struct {
	blocks map[uint64]*evm.Block
	fail   map[uint64]error
	calls  []uint64
}

func (f *fakeBlocks) GetBlock(ctx context.Context, n uint64) (*evm.Block, error) {
	f.calls = append(f.calls, n)
	if err := f.fail[n]; err != nil {
		return nil, err
	}
	if b, ok := f.blocks[n]; ok {
		return b, nil
	}
	return &evm.Block{Number: hexutil.Uint64(n), Hash: fmt.Sprintf("0xb%d", n)}, nil
}

func tx(hash, from string, to *string, value *big.Int) evm.Transaction {
	return evm.Transaction{Hash: hash, From: from, To: to, Value: (*hexutil.Big)(value)}
}

func strPtr(s string) *string { return &s }

func collect(t *testing.T, seq func(func(domain.TransferEvent, error) bool)) ([]domain.TransferEvent, error) {
	t.Helper()
	var (
		events []domain.TransferEvent
		last   error
	)
	for ev, err := range seq {
		if err != nil {
			last = err
			break
		}
		events = append(events, ev)
	}
	return events, last
}

func nativeConfig() domain.MonitorConfig {
	return domain.MonitorConfig{Currency: "ETX", Chain: domain.ChainETX, Kind: domain.KindNative, Decimals: 18}.WithDefaults()
}

func TestBlockScanner_SingleInbound(t *testing.T) {
	src := &fakeBlocks{blocks: map[uint64]*evm.Block{
		100: {Number: 100, Hash: "0xb100", Timestamp: 1700000000, Transactions: []evm.Transaction{
			tx("0xt1", outsider, strPtr("0x"+strings.ToUpper(tracked1[2:])), oneEther),
		}},
	}}

	events, err := collect(t, NewBlockScanner(src).Scan(context.Background(), nativeConfig(), domain.NewAddressSet(tracked1), 100, 100))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, domain.DirectionIn, ev.Direction)
	assert.Equal(t, tracked1, ev.TrackedAddress)
	assert.Equal(t, outsider, ev.Counterparty)
	assert.Equal(t, uint64(100), ev.BlockNumber)
	assert.Equal(t, "0xt1", ev.ID())
	assert.True(t, decimal.NewFromInt(1).Equal(ev.Value))
	assert.Equal(t, int64(1700000000), ev.Timestamp.Unix())
}

func TestBlockScanner_SelfTransferAndNullTo(t *testing.T) {
	src := &fakeBlocks{blocks: map[uint64]*evm.Block{
		5: {Number: 5, Transactions: []evm.Transaction{
			tx("0xself", tracked1, strPtr(tracked1), oneEther),
			tx("0xdeploy", tracked2, nil, oneEther),
			tx("0xzero", tracked1, strPtr(outsider), big.NewInt(0)),
			tx("0xelse", outsider, strPtr(outsider), oneEther),
		}},
	}}

	events, err := collect(t, NewBlockScanner(src).Scan(context.Background(), nativeConfig(), domain.NewAddressSet(tracked1, tracked2), 5, 5))
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, "0xself", events[0].TxHash)
	assert.Equal(t, domain.DirectionOut, events[0].Direction)
	assert.Equal(t, "0xself", events[1].TxHash)
	assert.Equal(t, domain.DirectionIn, events[1].Direction)
	assert.Equal(t, events[0].ID(), events[1].ID())

	assert.Equal(t, "0xdeploy", events[2].TxHash)
	assert.Equal(t, domain.DirectionOut, events[2].Direction)
	assert.Empty(t, events[2].Counterparty)

	assert.Equal(t, "0xzero", events[3].TxHash)
	assert.Equal(t, domain.DirectionOut, events[3].Direction)
	assert.True(t, events[3].Value.IsZero())
}

func TestBlockScanner_ZeroValueTransactions(t *testing.T) {
	src := &fakeBlocks{blocks: map[uint64]*evm.Block{
		7: {Number: 7, Transactions: []evm.Transaction{
			tx("0xcall", tracked1, strPtr(usdt), big.NewInt(0)),
			{Hash: "0xnovalue", From: outsider, To: strPtr(tracked1)},
		}},
	}}

	events, err := collect(t, NewBlockScanner(src).Scan(context.Background(), nativeConfig(), domain.NewAddressSet(tracked1), 7, 7))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "0xcall", events[0].TxHash)
	assert.Equal(t, domain.DirectionOut, events[0].Direction)
	assert.Equal(t, 0, events[0].Amount.Sign())
	assert.True(t, events[0].Value.IsZero())

	assert.Equal(t, "0xnovalue", events[1].TxHash)
	assert.Equal(t, domain.DirectionIn, events[1].Direction)
	require.NotNil(t, events[1].Amount)
	assert.True(t, events[1].Value.IsZero())
}

func TestBlockScanner_FetchFailureKeepsEarlierEvents(t *testing.T) {
	src := &fakeBlocks{
		blocks: map[uint64]*evm.Block{
			10: {Number: 10, Transactions: []evm.Transaction{tx("0xa", outsider, strPtr(tracked1), oneEther)}},
		},
		fail: map[uint64]error{11: &domain.ChainUnavailableError{Chain: domain.ChainETX, Err: errors.New("down")}},
	}

	events, err := collect(t, NewBlockScanner(src).Scan(context.Background(), nativeConfig(), domain.NewAddressSet(tracked1), 10, 20))
	require.Len(t, events, 1)

	var bf *domain.BlockFetchError
	require.True(t, errors.As(err, &bf))
	assert.Equal(t, uint64(11), bf.Block)
	assert.ErrorIs(t, err, domain.ErrChainUnavailable)
	assert.Equal(t, []uint64{10, 11}, src.calls)
}

func TestBlockScanner_NullBlockIsFetchError(t *testing.T) {
	src := &fakeBlocks{blocks: map[uint64]*evm.Block{7: nil}}

	_, err := collect(t, NewBlockScanner(src).Scan(context.Background(), nativeConfig(), domain.NewAddressSet(tracked1), 7, 7))
	assert.ErrorIs(t, err, domain.ErrBlockFetch)
}

func TestBlockScanner_Replay(t *testing.T) {
	src := &fakeBlocks{blocks: map[uint64]*evm.Block{
		1: {Number: 1, Transactions: []evm.Transaction{tx("0x1", outsider, strPtr(tracked1), oneEther)}},
		3: {Number: 3, Transactions: []evm.Transaction{tx("0x3", tracked1, strPtr(outsider), big.NewInt(5))}},
	}}
	scanner := NewBlockScanner(src)
	set := domain.NewAddressSet(tracked1)

	first, err := collect(t, scanner.Scan(context.Background(), nativeConfig(), set, 1, 3))
	require.NoError(t, err)
	second, err := collect(t, scanner.Scan(context.Background(), nativeConfig(), set, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func TestBlockScanner_EmptyRange(t *testing.T) {
	src := &fakeBlocks{}
	events, err := collect(t, NewBlockScanner(src).Scan(context.Background(), nativeConfig(), domain.NewAddressSet(tracked1), 5, 4))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, src.calls)
}

func TestBlockScanner_StopsWhenConsumerStops(t *testing.T) {
	src := &fakeBlocks{blocks: map[uint64]*evm.Block{
		1: {Number: 1, Transactions: []evm.Transaction{tx("0x1", outsider, strPtr(tracked1), oneEther)}},
		2: {Number: 2, Transactions: []evm.Transaction{tx("0x2", outsider, strPtr(tracked1), oneEther)}},
	}}
	for range NewBlockScanner(src).Scan(context.Background(), nativeConfig(), domain.NewAddressSet(tracked1), 1, 100) {
		break
	}
	assert.Equal(t, []uint64{1}, src.calls)
}

// --- log scanner ---

type fakeLogs struct {
	windows [][2]uint64
	byStart map[uint64][]string
	fail    map[uint64]error
}

func (f *fakeLogs) GetLogs(ctx context.Context, filter evm.LogFilter) ([]json.RawMessage, error) {
	f.windows = append(f.windows, [2]uint64{filter.FromBlock, filter.ToBlock})
	if err := f.fail[filter.FromBlock]; err != nil {
		return nil, err
	}
	var out []json.RawMessage
	for _, s := range f.byStart[filter.FromBlock] {
		out = append(out, json.RawMessage(s))
	}
	return out, nil
}

func padTopic(addr string) string {
	return "0x" + strings.Repeat("0", 24) + strings.TrimPrefix(addr, "0x")
}

func logEntry(txHash string, block, index uint64, from, to string, amount *big.Int, removed bool) string {
	data := fmt.Sprintf("0x%064x", amount)
	b, _ := json.Marshal(map[string]any{
		"address":         usdt,
		"topics":          []string{evm.TransferTopic.Hex(), padTopic(from), padTopic(to)},
		"data":            data,
		"blockNumber":     hexutil.EncodeUint64(block),
		"blockHash":       fmt.Sprintf("0xb%d", block),
		"transactionHash": txHash,
		"logIndex":        hexutil.EncodeUint64(index),
		"removed":         removed,
	})
	return string(b)
}

func tokenConfig() domain.MonitorConfig {
	return domain.MonitorConfig{
		Currency: "USDT", Chain: domain.ChainETX, Kind: domain.KindToken,
		ContractAddress: usdt, Decimals: 6,
	}.WithDefaults()
}

func TestLogScanner_TopicDecode(t *testing.T) {
	src := &fakeLogs{byStart: map[uint64][]string{
		1: {logEntry("0xt", 50, 2, tracked1, outsider, big.NewInt(2_500_000), false)},
	}}

	events, err := collect(t, NewLogScanner(src).Scan(context.Background(), tokenConfig(), domain.NewAddressSet(tracked1), 1, 100))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, domain.DirectionOut, ev.Direction)
	assert.Equal(t, tracked1, ev.TrackedAddress)
	assert.Equal(t, outsider, ev.Counterparty)
	assert.Equal(t, "0xt:2", ev.ID())
	assert.Equal(t, usdt, ev.Contract)
	assert.Equal(t, "2.5", ev.Value.String())
}

func TestLogScanner_Windows(t *testing.T) {
	src := &fakeLogs{}
	_, err := collect(t, NewLogScanner(src).Scan(context.Background(), tokenConfig(), domain.NewAddressSet(tracked1), 1, 2500))
	require.NoError(t, err)
	assert.Equal(t, [][2]uint64{{1, 1000}, {1001, 2000}, {2001, 2500}}, src.windows)
}

func TestLogScanner_SkipsMalformedAndRemoved(t *testing.T) {
	src := &fakeLogs{byStart: map[uint64][]string{
		1: {
			logEntry("0xa", 10, 0, outsider, tracked1, big.NewInt(1), false),
			`{"transactionHash":"0xbad","topics":["0x01"],"data":"0x"}`,
			logEntry("0xr", 11, 0, outsider, tracked1, big.NewInt(1), true),
			logEntry("0xc", 12, 1, outsider, tracked1, big.NewInt(1), false),
		},
	}}

	events, err := collect(t, NewLogScanner(src).Scan(context.Background(), tokenConfig(), domain.NewAddressSet(tracked1), 1, 100))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "0xa", events[0].TxHash)
	assert.Equal(t, "0xc", events[1].TxHash)
}

func TestLogScanner_OrdersWithinWindow(t *testing.T) {
	src := &fakeLogs{byStart: map[uint64][]string{
		1: {
			logEntry("0xlate", 20, 0, outsider, tracked1, big.NewInt(1), false),
			logEntry("0xearly2", 10, 5, outsider, tracked1, big.NewInt(1), false),
			logEntry("0xearly1", 10, 1, outsider, tracked1, big.NewInt(1), false),
		},
	}}

	events, err := collect(t, NewLogScanner(src).Scan(context.Background(), tokenConfig(), domain.NewAddressSet(tracked1), 1, 100))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []string{"0xearly1", "0xearly2", "0xlate"}, []string{events[0].TxHash, events[1].TxHash, events[2].TxHash})
}

func TestLogScanner_QueryFailure(t *testing.T) {
	src := &fakeLogs{
		byStart: map[uint64][]string{1: {logEntry("0xa", 10, 0, outsider, tracked1, big.NewInt(1), false)}},
		fail:    map[uint64]error{1001: &domain.ChainUnavailableError{Chain: domain.ChainETX, Err: errors.New("down")}},
	}

	events, err := collect(t, NewLogScanner(src).Scan(context.Background(), tokenConfig(), domain.NewAddressSet(tracked1), 1, 2500))
	require.Len(t, events, 1)

	var lq *domain.LogQueryError
	require.True(t, errors.As(err, &lq))
	assert.Equal(t, uint64(1001), lq.From)
	assert.Equal(t, uint64(2000), lq.To)
	assert.Len(t, src.windows, 2)
}

func TestLogScanner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeLogs{}
	_, err := collect(t, NewLogScanner(src).Scan(ctx, tokenConfig(), domain.NewAddressSet(tracked1), 1, 10))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, src.windows)
}
