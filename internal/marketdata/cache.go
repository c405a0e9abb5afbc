package marketdata

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/marketbridge/mcp-marketdata/internal/output"
)

// CacheConfig holds configuration options for the CachedClient.
//
// # Staleness Considerations
//
// Cached datasets are served without contacting the upstream API, so the TTL
// settings bound how stale a response can be:
//   - QuotesTTL applies to quotes requests, which carry near-real-time prices
//     and should expire within seconds.
//   - TTL applies to history, fundamentals, and search requests, whose
//     results change slowly and tolerate minutes of staleness.
//
// # Capacity Planning
//
// Cache entries are keyed by the canonical request (kind plus its
// parameters). With the default MaxEntries of 1000 the cache holds roughly a
// session's worth of distinct queries; LRU eviction keeps the most recently
// requested datasets when capacity is exceeded. Watch the
// upstream_cache_events_total metric to tune this value.
type CacheConfig struct {
	// QuotesTTL is the time-to-live for quotes datasets.
	//
	// Default: 15 seconds.
	QuotesTTL time.Duration

	// TTL is the time-to-live for history, fundamentals, and search
	// datasets.
	//
	// Default: 5 minutes.
	TTL time.Duration

	// MaxEntries is the maximum number of entries the cache can hold.
	// When exceeded, least recently accessed entries are evicted.
	//
	// Default: 1000.
	MaxEntries int

	// CleanupInterval is how often the background cleanup runs to remove
	// expired entries.
	//
	// Default: 1 minute.
	CleanupInterval time.Duration
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		QuotesTTL:       15 * time.Second,
		TTL:             5 * time.Minute,
		MaxEntries:      1000,
		CleanupInterval: 1 * time.Minute,
	}
}

// cachedDataset holds a cached query result along with cache metadata.
type cachedDataset struct {
	dataset *output.Dataset

	// Cache metadata
	createdAt time.Time
	expiry    time.Time

	// lastAccessedNanos stores the last accessed time as Unix nanoseconds.
	// Using atomic for lock-free reads during concurrent access.
	lastAccessedNanos atomic.Int64

	// kind identifies the request shape this entry answers.
	kind RequestKind
}

// isExpired returns true if the cached dataset has passed its TTL.
func (c *cachedDataset) isExpired(now time.Time) bool {
	return now.After(c.expiry)
}

// touch updates the last accessed time atomically.
func (c *cachedDataset) touch(now time.Time) {
	c.lastAccessedNanos.Store(now.UnixNano())
}

// getLastAccessed returns the last accessed time.
func (c *cachedDataset) getLastAccessed() time.Time {
	return time.Unix(0, c.lastAccessedNanos.Load())
}

// CacheMetricsRecorder defines the interface for recording cache metrics.
// This allows decoupling from the concrete instrumentation implementation.
type CacheMetricsRecorder interface {
	// RecordUpstreamCacheEvent records one cache lookup outcome.
	// Result is "hit" or "miss".
	RecordUpstreamCacheEvent(ctx context.Context, kind, result string)

	// RecordUpstreamCacheEviction records one cache eviction.
	RecordUpstreamCacheEviction(ctx context.Context, reason string)
}

// noopCacheMetrics is a no-op implementation of CacheMetricsRecorder.
type noopCacheMetrics struct{}

func (n *noopCacheMetrics) RecordUpstreamCacheEvent(context.Context, string, string) {}
func (n *noopCacheMetrics) RecordUpstreamCacheEviction(context.Context, string)      {}

// CachedClient wraps a Client with a thread-safe dataset cache using
// TTL-based eviction and memory management.
//
// Cached datasets are shared between callers, so they must be treated as
// read-only. Dataset exposes accessors only, which keeps this safe as long
// as callers do not mutate the returned records.
type CachedClient struct {
	inner Client

	mu      sync.RWMutex
	entries map[string]*cachedDataset

	// Configuration
	config CacheConfig
	logger *slog.Logger

	// Singleflight to collapse concurrent queries for the same key into
	// one upstream request
	queryGroup singleflight.Group

	// Metrics recorder
	metrics CacheMetricsRecorder

	// Lifecycle
	stopCh chan struct{}
	wg     sync.WaitGroup
	closed bool

	// Clock abstraction for testing
	now func() time.Time
}

// CachedClientOption is a functional option for configuring CachedClient.
type CachedClientOption func(*CachedClient)

// WithCacheConfig sets the cache configuration.
func WithCacheConfig(config CacheConfig) CachedClientOption {
	return func(c *CachedClient) {
		c.config = config
	}
}

// WithCacheLogger sets the logger for the cache.
func WithCacheLogger(logger *slog.Logger) CachedClientOption {
	return func(c *CachedClient) {
		c.logger = logger
	}
}

// WithCacheMetrics sets the metrics recorder for the cache.
func WithCacheMetrics(metrics CacheMetricsRecorder) CachedClientOption {
	return func(c *CachedClient) {
		c.metrics = metrics
	}
}

// withCacheClock sets the clock function for testing.
func withCacheClock(now func() time.Time) CachedClientOption {
	return func(c *CachedClient) {
		c.now = now
	}
}

// NewCachedClient wraps inner with a query cache configured by the provided
// options. The cache automatically starts a background goroutine for cleanup;
// call Close to stop it.
func NewCachedClient(inner Client, opts ...CachedClientOption) *CachedClient {
	c := &CachedClient{
		inner:   inner,
		entries: make(map[string]*cachedDataset),
		config:  DefaultCacheConfig(),
		logger:  slog.Default(),
		metrics: &noopCacheMetrics{},
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Validate configuration
	if c.config.QuotesTTL <= 0 {
		c.config.QuotesTTL = DefaultCacheConfig().QuotesTTL
	}
	if c.config.TTL <= 0 {
		c.config.TTL = DefaultCacheConfig().TTL
	}
	if c.config.MaxEntries <= 0 {
		c.config.MaxEntries = DefaultCacheConfig().MaxEntries
	}
	if c.config.CleanupInterval <= 0 {
		c.config.CleanupInterval = DefaultCacheConfig().CleanupInterval
	}

	// Start background cleanup
	c.wg.Add(1)
	go c.cleanupLoop()

	c.logger.Info("Query cache initialized",
		"quotes_ttl", c.config.QuotesTTL,
		"ttl", c.config.TTL,
		"max_entries", c.config.MaxEntries,
		"cleanup_interval", c.config.CleanupInterval)

	return c
}

// cacheKey generates a canonical cache key for a validated request. Optional
// fields are normalized first so a request relying on defaults shares an
// entry with one naming them explicitly.
func cacheKey(req Request) string {
	switch req.Kind {
	case KindQuotes:
		// Symbol order is preserved: upstream row order follows it.
		return "quotes|" + strings.Join(req.Symbols, ",")
	case KindHistory:
		interval := req.Interval
		if interval == "" {
			interval = DefaultInterval
		}
		lookback := req.Range
		if lookback == "" {
			lookback = DefaultRange
		}
		return "history|" + req.Symbol + "|" + interval + "|" + lookback
	case KindFundamentals:
		statement := req.Statement
		if statement == "" {
			statement = DefaultStatement
		}
		return "fundamentals|" + req.Symbol + "|" + statement
	case KindSearch:
		return "search|" + req.Query
	default:
		return string(req.Kind)
	}
}

// ttlFor returns the TTL applied to datasets of the given kind.
func (c *CachedClient) ttlFor(kind RequestKind) time.Duration {
	if kind == KindQuotes {
		return c.config.QuotesTTL
	}
	return c.config.TTL
}

// Query returns the cached dataset for the request when a fresh entry
// exists, and otherwise forwards to the wrapped client. Concurrent queries
// for the same key are collapsed into one upstream request via singleflight.
func (c *CachedClient) Query(ctx context.Context, req Request) (*output.Dataset, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := cacheKey(req)

	// Check cache first (fast path)
	if cached := c.get(ctx, key, req.Kind); cached != nil {
		return cached.dataset, nil
	}

	result, err, _ := c.queryGroup.Do(key, func() (interface{}, error) {
		// Double-check cache inside singleflight
		if cached := c.get(ctx, key, req.Kind); cached != nil {
			return cached, nil
		}

		dataset, err := c.inner.Query(ctx, req)
		if err != nil {
			return nil, err
		}

		// Store in cache and return the entry directly (avoiding a
		// redundant lookup)
		return c.setAndReturn(ctx, key, req.Kind, dataset), nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*cachedDataset).dataset, nil
}

// Ping forwards to the wrapped client. Connectivity checks are never cached.
func (c *CachedClient) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}

// get retrieves a fresh cached entry for the given key.
// Returns nil if no valid cached entry exists.
// This method is thread-safe and records cache hit/miss metrics.
func (c *CachedClient) get(ctx context.Context, key string, kind RequestKind) *cachedDataset {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil
	}

	entry, ok := c.entries[key]
	if !ok {
		c.metrics.RecordUpstreamCacheEvent(ctx, string(kind), "miss")
		return nil
	}

	if entry.isExpired(now) {
		c.metrics.RecordUpstreamCacheEvent(ctx, string(kind), "miss")
		return nil
	}

	// Touch to update LRU ordering. This is safe under RLock because
	// lastAccessedNanos uses atomic operations for lock-free updates.
	entry.touch(now)
	c.metrics.RecordUpstreamCacheEvent(ctx, string(kind), "hit")

	return entry
}

// setAndReturn stores a dataset in the cache and returns the cached entry.
// When the cache is already closed the entry is returned unstored so
// in-flight queries still complete.
func (c *CachedClient) setAndReturn(ctx context.Context, key string, kind RequestKind, dataset *output.Dataset) *cachedDataset {
	now := c.now()

	entry := &cachedDataset{
		dataset:   dataset,
		createdAt: now,
		expiry:    now.Add(c.ttlFor(kind)),
		kind:      kind,
	}
	entry.lastAccessedNanos.Store(now.UnixNano())

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return entry
	}

	// Evict LRU entries if at capacity
	c.evictIfNeededLocked(ctx)

	c.entries[key] = entry

	c.logger.Debug("Cached dataset",
		"key", key,
		"rows", dataset.RowCount(),
		"expiry", c.ttlFor(kind))

	return entry
}

// Size returns the current number of entries in the cache.
func (c *CachedClient) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the background cleanup goroutine and clears the cache.
// After Close is called, lookups miss and new results are no longer stored.
func (c *CachedClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// Signal cleanup goroutine to stop
	close(c.stopCh)

	// Wait for cleanup goroutine to finish
	c.wg.Wait()

	// Clear all entries
	c.mu.Lock()
	c.entries = make(map[string]*cachedDataset)
	c.mu.Unlock()

	c.logger.Info("Query cache closed")
	return nil
}

// cleanupLoop periodically removes expired entries from the cache.
func (c *CachedClient) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes all expired entries from the cache.
func (c *CachedClient) cleanup() {
	now := c.now()
	ctx := context.Background()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	expiredCount := 0
	for key, entry := range c.entries {
		if entry.isExpired(now) {
			delete(c.entries, key)
			expiredCount++
		}
	}

	if expiredCount > 0 {
		for i := 0; i < expiredCount; i++ {
			c.metrics.RecordUpstreamCacheEviction(ctx, "expired")
		}
		c.logger.Debug("Cleaned up expired cache entries",
			"expired_count", expiredCount,
			"remaining", len(c.entries))
	}
}

// evictIfNeededLocked evicts LRU entries if the cache is at capacity.
// Must be called with c.mu held.
func (c *CachedClient) evictIfNeededLocked(ctx context.Context) {
	if len(c.entries) < c.config.MaxEntries {
		return
	}

	// Find the least recently accessed entry
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		lastAccessed := entry.getLastAccessed()
		if oldestKey == "" || lastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = lastAccessed
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.metrics.RecordUpstreamCacheEviction(ctx, "lru")
		c.logger.Debug("Evicted LRU cache entry",
			"key", oldestKey,
			"last_accessed", oldestTime)
	}
}

// CacheStats reports current cache statistics.
type CacheStats struct {
	// Size is the current number of entries in the cache.
	Size int

	// MaxEntries is the maximum capacity.
	MaxEntries int

	// QuotesTTL is the configured time-to-live for quotes entries.
	QuotesTTL time.Duration

	// TTL is the configured time-to-live for all other entries.
	TTL time.Duration

	// OldestEntry is the age of the oldest entry (if any).
	OldestEntry time.Duration

	// NewestEntry is the age of the newest entry (if any).
	NewestEntry time.Duration
}

// Stats returns current cache statistics for monitoring.
func (c *CachedClient) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{
		Size:       len(c.entries),
		MaxEntries: c.config.MaxEntries,
		QuotesTTL:  c.config.QuotesTTL,
		TTL:        c.config.TTL,
	}

	if len(c.entries) == 0 {
		return stats
	}

	now := c.now()
	var oldest, newest time.Time

	for _, entry := range c.entries {
		if oldest.IsZero() || entry.createdAt.Before(oldest) {
			oldest = entry.createdAt
		}
		if newest.IsZero() || entry.createdAt.After(newest) {
			newest = entry.createdAt
		}
	}

	if !oldest.IsZero() {
		stats.OldestEntry = now.Sub(oldest)
	}
	if !newest.IsZero() {
		stats.NewestEntry = now.Sub(newest)
	}

	return stats
}
