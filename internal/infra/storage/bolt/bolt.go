package bolt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

var (
	stateBucket   = []byte("state")
	addressBucket = []byte("addresses")
)

// Config holds the on-disk location of the store.
type Config struct {
	Path string `yaml:"path"`
}

// Store implements storage.StateStore and storage.AddressRepository on a
// single bbolt file. Writers are serialized by bbolt, which gives
// CompareAndSwap its atomicity. Only one process can open the file.
type Store struct {
	db *bolt.DB
}

// Open creates the file and buckets if needed.
func Open(cfg Config) (*Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state dir: %w", err)
		}
	}
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{stateBucket, addressBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(stateBucket).Get([]byte(key)); v != nil {
			out = bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Put([]byte(key), nonNil(value))
	})
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	swapped := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(stateBucket)
		cur := b.Get([]byte(key))
		if prev == nil {
			if cur != nil {
				return nil
			}
		} else if cur == nil || !bytes.Equal(cur, prev) {
			return nil
		}
		swapped = true
		return b.Put([]byte(key), nonNil(next))
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

// ListByCurrency returns tracked addresses stored under "<currency>/<address>".
func (s *Store) ListByCurrency(ctx context.Context, currency string) ([]string, error) {
	var out []string
	prefix := []byte(currency + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(addressBucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			out = append(out, string(k[len(prefix):]))
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

func (s *Store) Add(ctx context.Context, currency string, addrs ...string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(addressBucket)
		for _, a := range addrs {
			n := domain.NormalizeAddress(a)
			if n == "" {
				continue
			}
			if err := b.Put([]byte(currency+"/"+n), []byte{1}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

// bbolt treats a nil value as absent on Get, so empty values are stored as zero-length.
func nonNil(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return v
}
