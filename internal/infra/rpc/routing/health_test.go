package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/walletwatch/internal/core/domain"
	"github.com/vietddude/walletwatch/internal/infra/storage"
	"github.com/vietddude/walletwatch/internal/infra/storage/memory"
)

func TestHealthMonitor_FastCallResets(t *testing.T) {
	ctx := context.Background()
	m := NewHealthMonitor(memory.NewMemoryStorage())

	seq := []time.Duration{3 * time.Second, 3 * time.Second, 100 * time.Millisecond, 3 * time.Second, 3 * time.Second}
	for _, d := range seq {
		got, err := m.Observe(ctx, domain.ChainETX, d)
		require.NoError(t, err)
		assert.Equal(t, NoAction, got)
	}

	got, err := m.Observe(ctx, domain.ChainETX, 2800*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, RotateNow, got, "threshold is inclusive")
}

func TestHealthMonitor_PerChainCounters(t *testing.T) {
	ctx := context.Background()
	m := NewHealthMonitor(memory.NewMemoryStorage(), WithStrikes(2), WithChainThreshold(domain.ChainETH, time.Second))

	_, err := m.Observe(ctx, domain.ChainETX, 1500*time.Millisecond)
	require.NoError(t, err)
	n, err := m.SlowCount(ctx, domain.ChainETX)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := m.Observe(ctx, domain.ChainETH, 1500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, NoAction, got)
	got, err = m.Observe(ctx, domain.ChainETH, 1500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, RotateNow, got)
}

func TestHealthMonitor_CorruptCounter(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	require.NoError(t, store.Set(ctx, storage.SlowCounterKey("ETX"), []byte("garbage")))

	m := NewHealthMonitor(store)
	got, err := m.Observe(ctx, domain.ChainETX, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, NoAction, got)

	n, err := m.SlowCount(ctx, domain.ChainETX)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
