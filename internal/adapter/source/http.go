package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/indicator-etl/internal/domain"
)

// maxErrorBody bounds how much of a non-200 response ends up in an error.
const maxErrorBody = 512

// HTTPFetcher downloads sources over HTTP.
type HTTPFetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPFetcher creates an HTTP fetcher whose requests time out after timeout.
func NewHTTPFetcher(timeout time.Duration, logger *slog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrSourceUnavailable, err)
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrSourceUnavailable, location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: fetch %s: status %d: %s", domain.ErrSourceUnavailable, location, resp.StatusCode, body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrSourceUnavailable, location, err)
	}
	f.logger.Debug("source fetched", "location", location, "bytes", len(data), "duration", time.Since(start))
	return data, nil
}
