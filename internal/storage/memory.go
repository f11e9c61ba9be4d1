package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type memoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	cdc    *Codec
	closed bool
}

// NewMemory returns an empty in-process store.
func NewMemory() Store {
	return &memoryStore{data: map[string][]byte{}, cdc: defaultCodec}
}

func (s *memoryStore) valueCodec() *Codec { return s.cdc }

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte) error {
	_ = ctx
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.data, key)
	return nil
}

func (s *memoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return sortedKeys(s.data, prefix), nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func sortedKeys(m map[string][]byte, prefix string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
