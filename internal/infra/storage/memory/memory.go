package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

// MemoryStorage keeps shared state in process. It is only safe when a single
// process monitors each chain, and is used by tests and local runs.
type MemoryStorage struct {
	state     map[string][]byte
	addresses map[string]map[string]struct{}
	mu        sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		state:     make(map[string][]byte),
		addresses: make(map[string]map[string]struct{}),
	}
}

// -----------------------------------------------------------------------------
// State Store
// -----------------------------------------------------------------------------

func (s *MemoryStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (s *MemoryStorage) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = bytes.Clone(value)
	return nil
}

func (s *MemoryStorage) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.state[key]
	if prev == nil {
		if ok {
			return false, nil
		}
	} else if !ok || !bytes.Equal(cur, prev) {
		return false, nil
	}
	s.state[key] = bytes.Clone(next)
	return true, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

// -----------------------------------------------------------------------------
// Address Repository
// -----------------------------------------------------------------------------

func (s *MemoryStorage) ListByCurrency(ctx context.Context, currency string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.addresses[currency]
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStorage) Add(ctx context.Context, currency string, addrs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.addresses[currency]
	if !ok {
		set = make(map[string]struct{})
		s.addresses[currency] = set
	}
	for _, a := range addrs {
		if n := domain.NormalizeAddress(a); n != "" {
			set[n] = struct{}{}
		}
	}
	return nil
}
