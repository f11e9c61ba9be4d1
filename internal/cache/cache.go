// Package cache coordinates refreshes of externally fetched artifacts stored in the kv store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"totdbot/internal/metrics"
	"totdbot/internal/storage"
	logx "totdbot/pkg/logx"
)

const keyPrefix = "cache/"

// ErrDataUnavailable means the upstream had no usable data. Fetch functions
// return it (wrapped or not); the coordinator then stores an empty sentinel.
var ErrDataUnavailable = errors.New("cache: no usable data available")

// Artifact is one cached payload. Empty marks a refresh that found no usable data.
type Artifact struct {
	Key       string
	Payload   []byte
	FetchedAt time.Time
	Empty     bool
}

type FetchFunc func(ctx context.Context) ([]byte, error)

// Follower refreshes a derived artifact after its primary was refreshed.
type Follower struct {
	Key   string
	TTL   time.Duration
	Fetch func(ctx context.Context, primary []byte) ([]byte, error)
}

// Spawner runs named background tasks (the runtime supervisor implements it).
type Spawner interface {
	Go(name string, fn func(ctx context.Context) error)
}

type Coordinator struct {
	st      storage.Store
	log     logx.Logger
	metrics *metrics.Manager
	now     func() time.Time
	spawner Spawner

	sf singleflight.Group

	mu        sync.RWMutex
	followers map[string][]Follower

	pending sync.WaitGroup
}

type Option func(c *Coordinator)

func WithMetrics(m *metrics.Manager) Option { return func(c *Coordinator) { c.metrics = m } }
func WithSpawner(s Spawner) Option          { return func(c *Coordinator) { c.spawner = s } }
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func New(st storage.Store, log logx.Logger, opts ...Option) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Coordinator{
		st:        st,
		log:       log.With(logx.String("comp", "cache")),
		now:       time.Now,
		followers: map[string][]Follower{},
	}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	return c
}

// Follow registers f to be refreshed in the background whenever primary is refreshed.
func (c *Coordinator) Follow(primary string, f Follower) {
	c.mu.Lock()
	c.followers[primary] = append(c.followers[primary], f)
	c.mu.Unlock()
}

// Peek returns the stored artifact regardless of freshness.
func (c *Coordinator) Peek(ctx context.Context, key string) (Artifact, bool, error) {
	var a Artifact
	ok, err := storage.Load(ctx, c.st, keyPrefix+key, &a)
	return a, ok, err
}

// GetOrRefresh returns the cached payload for key when it is younger than ttl,
// otherwise (or when force is set) fetches, stores and returns a fresh one.
// Concurrent callers for one key share a single fetch.
func (c *Coordinator) GetOrRefresh(ctx context.Context, key string, fetch FetchFunc, ttl time.Duration, force bool) ([]byte, error) {
	if !force {
		if payload, ok, err := c.fresh(ctx, key, ttl); ok {
			return payload, err
		}
	}

	v, err, shared := c.sf.Do(key, func() (any, error) {
		if !force {
			// another caller may have refreshed while we waited
			if payload, ok, err := c.fresh(ctx, key, ttl); ok {
				return payload, err
			}
		}
		return c.refresh(ctx, key, fetch)
	})
	if shared {
		c.log.Debug("joined in-flight refresh", logx.String("key", key))
	}
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// fresh reports ok when the store already answers for key within ttl.
func (c *Coordinator) fresh(ctx context.Context, key string, ttl time.Duration) ([]byte, bool, error) {
	a, ok, err := c.Peek(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed; refreshing", logx.String("key", key), logx.Err(err))
		return nil, false, nil
	}
	if !ok || c.now().Sub(a.FetchedAt) >= ttl {
		return nil, false, nil
	}
	if a.Empty {
		c.metrics.CacheResult(key, "empty")
		return nil, true, ErrDataUnavailable
	}
	c.metrics.CacheResult(key, "hit")
	return a.Payload, true, nil
}

func (c *Coordinator) refresh(ctx context.Context, key string, fetch FetchFunc) ([]byte, error) {
	start := c.now()
	payload, err := fetch(ctx)
	c.metrics.CacheRefresh(key, c.now().Sub(start))

	switch {
	case errors.Is(err, ErrDataUnavailable):
		c.metrics.CacheResult(key, "empty")
		if serr := storage.Save(ctx, c.st, keyPrefix+key, Artifact{Key: key, FetchedAt: c.now(), Empty: true}); serr != nil {
			return nil, fmt.Errorf("cache %q: store empty marker: %w", key, serr)
		}
		c.log.Info("upstream had no usable data; cached empty state", logx.String("key", key))
		return nil, ErrDataUnavailable
	case err != nil:
		c.metrics.CacheResult(key, "error")
		return nil, err
	}

	if err := storage.Save(ctx, c.st, keyPrefix+key, Artifact{Key: key, Payload: payload, FetchedAt: c.now()}); err != nil {
		return nil, fmt.Errorf("cache %q: store: %w", key, err)
	}
	c.metrics.CacheResult(key, "refresh")
	c.spawnFollowers(key, payload)
	return payload, nil
}

func (c *Coordinator) spawnFollowers(primary string, payload []byte) {
	c.mu.RLock()
	fs := append([]Follower(nil), c.followers[primary]...)
	c.mu.RUnlock()

	for _, f := range fs {
		f := f
		run := func(ctx context.Context) error {
			defer c.pending.Done()
			_, err := c.GetOrRefresh(ctx, f.Key, func(ctx context.Context) ([]byte, error) {
				return f.Fetch(ctx, payload)
			}, f.TTL, true)
			if err != nil && !errors.Is(err, ErrDataUnavailable) {
				c.log.Warn("follower refresh failed", logx.String("key", f.Key), logx.String("primary", primary), logx.Err(err))
			}
			// follower failures never stop the process
			return nil
		}
		c.pending.Add(1)
		if c.spawner != nil {
			c.spawner.Go("cache.follow."+f.Key, run)
			continue
		}
		go func() { _ = run(context.Background()) }()
	}
}

// Wait blocks until every follower refresh spawned so far finished or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
