package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
	ErrEmptyKey = errors.New("storage: empty key")
)

// Config configures storage.
//
// Driver values:
//   - "memory" (default when empty)
//   - "file": dependency-free file backend (jsonl journal + snapshot)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// CompressThreshold is the encoded size above which values are zstd-compressed.
	// 0 means DefaultCompressThreshold, negative disables compression.
	CompressThreshold int
}

// Store is the get/set/delete contract every component persists through.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists keys with the given prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
