package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")
)

// StateStore is the shared key-value store behind endpoint order, slow
// counters and scan checkpoints. Every process monitoring the same chain
// must point at the same StateStore.
type StateStore interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set unconditionally writes a value.
	Set(ctx context.Context, key string, value []byte) error

	// CompareAndSwap writes next only if the current value equals prev.
	// A nil prev means the key must be absent. It reports whether the write happened.
	CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error)

	// Close releases the underlying connection.
	Close() error
}

// AddressRepository supplies the tracked address set per currency.
type AddressRepository interface {
	// ListByCurrency returns every tracked address for a currency.
	ListByCurrency(ctx context.Context, currency string) ([]string, error)

	// Add registers addresses for a currency. Existing entries are ignored.
	Add(ctx context.Context, currency string, addrs ...string) error
}

// Key helpers for the shared state layout.
func EndpointsKey(chain string) string {
	return "walletwatch:endpoints:" + chain
}

func SlowCounterKey(chain string) string {
	return "walletwatch:slow:" + chain
}

func CheckpointKey(chain, currency string) string {
	return "walletwatch:checkpoint:" + chain + ":" + currency
}

func ColdBalanceKey(currency string) string {
	return "walletwatch:cold:" + currency
}
