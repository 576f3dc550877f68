package source

import (
	"context"
	"fmt"

	"github.com/couchcryptid/indicator-etl/internal/observability"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedFetcher wraps a Fetcher with an in-memory LRU cache keyed by location.
type CachedFetcher struct {
	inner   Fetcher
	cache   *lru.Cache[string, []byte]
	metrics *observability.Metrics
}

// NewCachedFetcher creates a cache decorator around a fetcher.
func NewCachedFetcher(inner Fetcher, maxEntries int, metrics *observability.Metrics) (*CachedFetcher, error) {
	cache, err := lru.New[string, []byte](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create fetch cache: %w", err)
	}
	return &CachedFetcher{inner: inner, cache: cache, metrics: metrics}, nil
}

// Fetch implements Fetcher. Only successful payloads are cached so a failed
// source is retried on the next load.
func (c *CachedFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if data, ok := c.cache.Get(location); ok {
		c.metrics.FetchCache.WithLabelValues("hit").Inc()
		return data, nil
	}
	c.metrics.FetchCache.WithLabelValues("miss").Inc()

	data, err := c.inner.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	c.cache.Add(location, data)
	return data, nil
}

// Purge drops every cached payload, forcing the next load to refetch.
func (c *CachedFetcher) Purge() {
	c.cache.Purge()
}
