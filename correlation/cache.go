package correlation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/exchange"
	"github.com/c360/exchangegate/metric"
)

// DefaultTTL is how long a parked exchange waits to be taken.
const DefaultTTL = time.Hour

// Cache maps correlation keys to parked exchanges. Put and Take are atomic
// per key; a Take removes the entry, so an exchange is resumed at most once.
type Cache struct {
	items   *ttlcache.Cache[string, *exchange.State]
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metric.Metrics
	stats   Statistics

	// keys serializes Put, Take and Discard so a conditional delete never
	// removes an entry stored between its read and its delete.
	keys sync.Mutex

	mu      sync.Mutex
	started bool
	closed  bool
}

// Statistics counts cache operations.
type Statistics struct {
	puts    atomic.Int64
	hits    atomic.Int64
	misses  atomic.Int64
	expired atomic.Int64
}

// Puts returns the number of stored entries.
func (s *Statistics) Puts() int64 { return s.puts.Load() }

// Hits returns the number of successful takes.
func (s *Statistics) Hits() int64 { return s.hits.Load() }

// Misses returns the number of takes that found nothing.
func (s *Statistics) Misses() int64 { return s.misses.Load() }

// Expired returns the number of entries dropped by expiry.
func (s *Statistics) Expired() int64 { return s.expired.Load() }

// CacheOption configures a Cache.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	ttl      time.Duration
	capacity uint64
	logger   *slog.Logger
	metrics  *metric.Metrics
}

// WithTTL sets the entry lifetime. Non-positive values keep DefaultTTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *cacheConfig) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCapacity bounds the number of parked exchanges. When full, the entry
// closest to expiry is dropped.
func WithCapacity(capacity uint64) CacheOption {
	return func(c *cacheConfig) {
		c.capacity = capacity
	}
}

// WithLogger sets the cache logger.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *cacheConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records cache operations in the core metrics.
func WithMetrics(metrics *metric.Metrics) CacheOption {
	return func(c *cacheConfig) {
		c.metrics = metrics
	}
}

// NewCache creates an empty cache. Expired entries are only swept after Start;
// Take never returns an expired entry either way.
func NewCache(opts ...CacheOption) *Cache {
	cfg := cacheConfig{
		ttl:    DefaultTTL,
		logger: slog.Default().With("component", "correlation-cache"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ttlOpts := []ttlcache.Option[string, *exchange.State]{
		ttlcache.WithTTL[string, *exchange.State](cfg.ttl),
		ttlcache.WithDisableTouchOnHit[string, *exchange.State](),
	}
	if cfg.capacity > 0 {
		ttlOpts = append(ttlOpts, ttlcache.WithCapacity[string, *exchange.State](cfg.capacity))
	}

	c := &Cache{
		items:   ttlcache.New(ttlOpts...),
		ttl:     cfg.ttl,
		logger:  cfg.logger,
		metrics: cfg.metrics,
	}
	c.items.OnEviction(c.onEviction)
	return c
}

// TTL returns the entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Put parks state under key, replacing any entry already there.
func (c *Cache) Put(key string, state *exchange.State) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrCorrelationKeyBlank, "Cache", "Put", "store exchange")
	}
	if state == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Cache", "Put", "nil exchange")
	}

	c.keys.Lock()
	if c.items.Has(key) {
		c.logger.Debug("Replacing parked exchange", "key", key)
	}
	c.items.Set(key, state, ttlcache.DefaultTTL)
	c.keys.Unlock()
	c.stats.puts.Add(1)
	c.record("put", "ok")
	c.recordEntries()
	return nil
}

// Take removes and returns the exchange parked under key. It returns false
// when there is none or it expired.
func (c *Cache) Take(key string) (*exchange.State, bool) {
	c.keys.Lock()
	item, ok := c.items.GetAndDelete(key)
	c.keys.Unlock()
	if !ok || item == nil || item.IsExpired() {
		c.stats.misses.Add(1)
		c.record("take", "miss")
		return nil, false
	}
	c.stats.hits.Add(1)
	c.record("take", "hit")
	c.recordEntries()
	return item.Value(), true
}

// Discard removes the entry under key only while it still parks state. An
// entry stored later under the same key stays, with its expiry untouched.
func (c *Cache) Discard(key string, state *exchange.State) bool {
	if key == "" || state == nil {
		return false
	}

	c.keys.Lock()
	item := c.items.Get(key)
	owned := item != nil && !item.IsExpired() && item.Value() == state
	if owned {
		c.items.Delete(key)
	}
	c.keys.Unlock()

	if !owned {
		return false
	}
	c.record("discard", "ok")
	c.recordEntries()
	return true
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Cache) Len() int { return c.items.Len() }

// Stats returns the operation counters.
func (c *Cache) Stats() *Statistics { return &c.stats }

// Start runs the expiry sweep until ctx is done or Close is called.
func (c *Cache) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true

	go c.items.Start()
	go func() {
		<-ctx.Done()
		c.Close()
	}()
}

// Close stops the sweep and drops every entry. Exchanges still parked are
// left to their dispatchers' deadlines.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.started {
		c.items.Stop()
	}
	if n := c.items.Len(); n > 0 {
		c.logger.Info("Dropping parked exchanges", "count", n)
	}
	c.items.DeleteAll()
	c.recordEntries()
}

func (c *Cache) onEviction(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *exchange.State]) {
	switch reason {
	case ttlcache.EvictionReasonExpired:
		c.stats.expired.Add(1)
		c.record("evict", "expired")
		c.logger.Warn("Parked exchange expired before it was resumed",
			"key", item.Key(), "exchange", item.Value().ID(), "ttl", c.ttl)
	case ttlcache.EvictionReasonCapacityReached:
		c.record("evict", "capacity")
		c.logger.Warn("Parked exchange dropped, cache full", "key", item.Key(), "exchange", item.Value().ID())
	}
}

func (c *Cache) record(op, result string) {
	if c.metrics != nil {
		c.metrics.RecordCorrelation(op, result)
	}
}

func (c *Cache) recordEntries() {
	if c.metrics != nil {
		c.metrics.RecordCorrelationEntries(c.items.Len())
	}
}
