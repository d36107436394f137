package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

// AddressRepo implements storage.AddressRepository using PostgreSQL.
type AddressRepo struct {
	db *DB
}

// NewAddressRepo creates a new PostgreSQL address repository.
func NewAddressRepo(db *DB) *AddressRepo {
	return &AddressRepo{db: db}
}

// ListByCurrency retrieves all tracked addresses for a currency.
func (r *AddressRepo) ListByCurrency(ctx context.Context, currency string) ([]string, error) {
	var addrs []string
	err := r.db.SelectContext(ctx, &addrs,
		`SELECT address FROM tracked_addresses WHERE currency = $1 ORDER BY address`, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked addresses: %w", err)
	}
	return addrs, nil
}

// Add inserts addresses, skipping ones already tracked.
func (r *AddressRepo) Add(ctx context.Context, currency string, addrs ...string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, a := range addrs {
		n := domain.NormalizeAddress(a)
		if n == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tracked_addresses (currency, address) VALUES ($1, $2)
			ON CONFLICT (currency, address) DO NOTHING`, currency, n); err != nil {
			return fmt.Errorf("failed to save tracked address: %w", err)
		}
	}
	return tx.Commit()
}
