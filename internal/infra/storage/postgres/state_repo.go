package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// StateRepo implements storage.StateStore on the walletwatch_state table.
type StateRepo struct {
	db *DB
}

// NewStateRepo creates a new PostgreSQL state repository.
func NewStateRepo(db *DB) *StateRepo {
	return &StateRepo{db: db}
}

// Get retrieves a value by key.
func (r *StateRepo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := r.db.GetContext(ctx, &value, `SELECT value FROM walletwatch_state WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts a value.
func (r *StateRepo) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO walletwatch_state (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

// CompareAndSwap relies on row-level atomicity of a conditional write.
func (r *StateRepo) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if prev == nil {
		res, err = r.db.ExecContext(ctx, `
			INSERT INTO walletwatch_state (key, value, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO NOTHING`,
			key, next)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE walletwatch_state SET value = $3, updated_at = now()
			WHERE key = $1 AND value = $2`,
			key, prev, next)
	}
	if err != nil {
		return false, fmt.Errorf("failed to swap state %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to swap state %s: %w", key, err)
	}
	return n == 1, nil
}

// Close closes the database connection.
func (r *StateRepo) Close() error {
	return r.db.Close()
}
