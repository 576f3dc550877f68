// Package source retrieves raw source payloads from URLs or local files.
package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/couchcryptid/indicator-etl/internal/domain"
)

// Fetcher retrieves the raw bytes behind a source location. Every failure
// wraps domain.ErrSourceUnavailable.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// FileFetcher reads sources from the local filesystem.
type FileFetcher struct{}

// Fetch implements Fetcher.
func (FileFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSourceUnavailable, location, err)
	}
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	return data, nil
}

// Router sends http(s) locations to HTTP and everything else to File.
type Router struct {
	HTTP Fetcher
	File Fetcher
}

// NewRouter pairs an HTTP fetcher with a FileFetcher.
func NewRouter(httpFetcher Fetcher) *Router {
	return &Router{HTTP: httpFetcher, File: FileFetcher{}}
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: empty location", domain.ErrSourceUnavailable)
	}
	if IsURL(location) {
		return r.HTTP.Fetch(ctx, location)
	}
	return r.File.Fetch(ctx, location)
}

// IsURL reports whether location is an http or https URL.
func IsURL(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
