package control

import (
	"context"
	"fmt"

	"github.com/vietddude/walletwatch/internal/core/config"
	redisclient "github.com/vietddude/walletwatch/internal/infra/redis"
	"github.com/vietddude/walletwatch/internal/infra/storage/bolt"
	"github.com/vietddude/walletwatch/internal/infra/storage/memory"
	"github.com/vietddude/walletwatch/internal/infra/storage/postgres"
)

// openStorage picks the shared state backend. Tracked addresses come from
// Postgres whenever a database is configured, otherwise from the state
// backend itself or an in-memory set seeded from config.
func (w *Watcher) openStorage(ctx context.Context) error {
	cfg := w.cfg

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		w.db = db
		w.addresses = postgres.NewAddressRepo(db)
		w.log.Info("Using PostgreSQL for tracked addresses")
	}

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		if w.db == nil {
			return fmt.Errorf("store backend postgres requires database.url")
		}
		w.store = postgres.NewStateRepo(w.db)
	case config.BackendRedis:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			w.closeDB()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		w.store = client
	case config.BackendBolt:
		store, err := bolt.Open(cfg.Bolt)
		if err != nil {
			w.closeDB()
			return err
		}
		w.store = store
		if w.addresses == nil {
			w.addresses = store
		}
	default:
		mem := memory.NewMemoryStorage()
		w.store = mem
		if w.addresses == nil {
			w.addresses = mem
		}
	}

	if w.addresses == nil {
		w.addresses = memory.NewMemoryStorage()
	}
	w.log.Info("Shared state store ready", "backend", cfg.Store.Backend)
	return nil
}

// storeOwnsDB reports whether closing the state store already closes the database.
func (w *Watcher) storeOwnsDB() bool {
	_, ok := w.store.(*postgres.StateRepo)
	return ok
}

func (w *Watcher) closeDB() {
	if w.db != nil {
		_ = w.db.Close()
		w.db = nil
	}
}
