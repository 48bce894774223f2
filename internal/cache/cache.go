package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docs_cache_hits_total",
			Help: "Total number of fresh cache hits",
		},
		[]string{"cache"},
	)

	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docs_cache_misses_total",
			Help: "Total number of cache misses and stale reads",
		},
		[]string{"cache"},
	)

	cacheRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docs_cache_refresh_duration_seconds",
			Help:    "Duration of cache producer invocations",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"cache", "result"},
	)
)

// Config holds cache configuration
type Config struct {
	Name string
	TTL  time.Duration

	// FetchTimeout bounds a single producer invocation. The producer runs
	// detached from the caller's cancellation so that an abandoned request
	// never aborts a fetch other callers are waiting on.
	FetchTimeout time.Duration

	Logger *slog.Logger

	// Now is the clock used for freshness checks
	Now func() time.Time
}

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

// Cache memoizes an expensive producer per key for a fixed time window.
// Concurrent misses for the same key share one producer invocation.
type Cache[K comparable, V any] struct {
	name         string
	ttl          time.Duration
	fetchTimeout time.Duration
	fetch        func(ctx context.Context, key K) (V, error)
	now          func() time.Time
	logger       *slog.Logger

	mu      sync.RWMutex
	entries map[K]entry[V]
	flights singleflight.Group
}

// New creates a cache in front of fetch
func New[K comparable, V any](cfg Config, fetch func(ctx context.Context, key K) (V, error)) (*Cache[K, V], error) {
	if fetch == nil {
		return nil, errors.New("fetch function is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("cache %q: ttl must be positive", cfg.Name)
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Cache[K, V]{
		name:         cfg.Name,
		ttl:          cfg.TTL,
		fetchTimeout: cfg.FetchTimeout,
		fetch:        fetch,
		now:          cfg.Now,
		logger:       cfg.Logger,
		entries:      make(map[K]entry[V]),
	}, nil
}

// Get returns the cached value for key, invoking the producer when the
// value is missing or older than the TTL
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if v, ok := c.fresh(key); ok {
		cacheHits.WithLabelValues(c.name).Inc()
		return v, nil
	}
	cacheMisses.WithLabelValues(c.name).Inc()

	flightKey := fmt.Sprint(key)
	ch := c.flights.DoChan(flightKey, func() (any, error) {
		// another flight may have landed between the freshness check and here
		if v, ok := c.fresh(key); ok {
			return v, nil
		}
		return c.refresh(ctx, key)
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// Refresh invokes the producer for key even if the stored value is fresh.
// Readers keep getting the previous value until the new one lands; on
// failure the previous value is kept.
func (c *Cache[K, V]) Refresh(ctx context.Context, key K) (V, error) {
	ch := c.flights.DoChan(fmt.Sprint(key), func() (any, error) {
		return c.refresh(ctx, key)
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// Peek returns the stored value for key regardless of its age
func (c *Cache[K, V]) Peek(key K) (V, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.value, e.fetchedAt, ok
}

// Invalidate drops the stored value for key
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge drops every stored value
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}

// Len returns the number of stored values, fresh or stale
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[K, V]) fresh(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[K, V]) refresh(ctx context.Context, key K) (V, error) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	start := time.Now()
	v, err := c.fetch(fetchCtx, key)
	elapsed := time.Since(start)
	if err != nil {
		cacheRefreshDuration.WithLabelValues(c.name, "error").Observe(elapsed.Seconds())
		c.logger.Warn("cache refresh failed",
			"cache", c.name,
			"key", fmt.Sprint(key),
			"error", err,
			"duration", elapsed,
		)
		return v, err
	}
	cacheRefreshDuration.WithLabelValues(c.name, "ok").Observe(elapsed.Seconds())

	c.mu.Lock()
	c.entries[key] = entry[V]{value: v, fetchedAt: c.now()}
	c.mu.Unlock()

	c.logger.Debug("cache refreshed",
		"cache", c.name,
		"key", fmt.Sprint(key),
		"duration", elapsed,
	)
	return v, nil
}
