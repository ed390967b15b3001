// Package cache holds decoded media keyed by content digest. The whole map is
// loaded at startup and written back wholesale, never as an incremental log.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/gftdcojp/wxmedia/internal/metrics"
	"github.com/gftdcojp/wxmedia/internal/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	DefaultMaxEntries     = 100000
	DefaultFlushThreshold = 15
)

// Options bounds the cache and tunes the flush policy.
type Options struct {
	MaxEntries     int
	FlushThreshold int
}

// Cache is the digest-keyed media cache. All mutations are serialized; the
// flush decision uses the entry count recorded at the last successful flush.
type Cache struct {
	mu        sync.Mutex
	entries   *lru.Cache[string, Entry]
	capacity  int
	threshold int
	highWater int
	dirty     int

	flushMu   sync.Mutex
	persister Persister
	logger    *zap.Logger
}

// Open loads the persisted snapshot. A missing or corrupt snapshot yields an
// empty cache rather than an error.
func Open(ctx context.Context, p Persister, opts Options, logger *zap.Logger) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.FlushThreshold <= 0 {
		opts.FlushThreshold = DefaultFlushThreshold
	}

	entries, _ := lru.NewWithEvict[string, Entry](opts.MaxEntries, func(string, Entry) {
		metrics.CacheOps.WithLabelValues("evict").Inc()
	})
	c := &Cache{
		entries:   entries,
		capacity:  opts.MaxEntries,
		threshold: opts.FlushThreshold,
		persister: p,
		logger:    logger,
	}

	if p != nil {
		c.load(ctx)
	}
	c.highWater = c.entries.Len()
	metrics.CacheEntries.Set(float64(c.highWater))
	return c
}

func (c *Cache) load(ctx context.Context) {
	data, err := c.persister.Load(ctx)
	if err != nil {
		c.logger.Warn("loading media cache failed, starting empty", zap.Error(err))
		return
	}
	if len(data) == 0 {
		return
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		c.logger.Warn("media cache snapshot is corrupt, starting empty", zap.Error(err))
		return
	}
	for digest, e := range snap {
		c.entries.Add(digest, e)
	}
	c.logger.Info("media cache loaded", zap.Int("entries", c.entries.Len()))
}

// Get returns the entry for digest.
func (c *Cache) Get(digest string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Get(digest)
	if ok {
		metrics.CacheOps.WithLabelValues("hit").Inc()
	} else {
		metrics.CacheOps.WithLabelValues("miss").Inc()
	}
	return e, ok
}

// Put stores an entry and flushes once the cache has grown by the threshold
// since the last flush. When the size bound keeps the count flat, the number
// of puts since the last flush triggers it instead.
func (c *Cache) Put(ctx context.Context, digest string, payload []byte, format types.Format) {
	c.mu.Lock()
	c.entries.Add(digest, Entry{Payload: payload, Format: format})
	c.dirty++
	n := c.entries.Len()
	due := n >= c.highWater+c.threshold || (n >= c.capacity && c.dirty >= c.threshold)
	c.mu.Unlock()

	metrics.CacheOps.WithLabelValues("put").Inc()
	metrics.CacheEntries.Set(float64(n))

	if due {
		if err := c.Flush(ctx); err != nil {
			c.logger.Warn("automatic media cache flush failed", zap.Error(err))
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Flush writes the whole cache if anything changed since the last flush.
func (c *Cache) Flush(ctx context.Context) error {
	if c.persister == nil {
		return nil
	}
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	if c.dirty == 0 {
		c.mu.Unlock()
		return nil
	}
	snap := make(map[string]Entry, c.entries.Len())
	for _, k := range c.entries.Keys() {
		if e, ok := c.entries.Peek(k); ok {
			snap[k] = e
		}
	}
	pending := c.dirty
	c.mu.Unlock()

	data, err := EncodeSnapshot(snap)
	if err != nil {
		metrics.CacheFlushErrors.Inc()
		return err
	}
	if err := c.persister.Save(ctx, data); err != nil {
		metrics.CacheFlushErrors.Inc()
		return fmt.Errorf("saving media cache: %w", err)
	}

	c.mu.Lock()
	c.highWater = len(snap)
	c.dirty -= pending
	c.mu.Unlock()

	metrics.CacheOps.WithLabelValues("flush").Inc()
	c.logger.Debug("media cache flushed", zap.Int("entries", len(snap)), zap.Int("bytes", len(data)))
	return nil
}

// Close flushes the cache.
func (c *Cache) Close(ctx context.Context) error {
	return c.Flush(ctx)
}
