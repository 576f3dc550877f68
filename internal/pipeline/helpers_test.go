package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/couchcryptid/indicator-etl/internal/domain"
	"github.com/couchcryptid/indicator-etl/internal/pipeline"
	"github.com/stretchr/testify/require"
)

const (
	internetLoc    = "testdata/internet.csv"
	gdpLoc         = "testdata/gdp.csv"
	electricityLoc = "testdata/electricity.csv"
	geojsonLoc     = "testdata/countries.geojson"
)

// fakeFetcher serves payloads from memory and can fail individual locations.
type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[string][]byte
	failures map[string]int // location -> remaining failures; -1 fails forever
	calls    map[string]int
}

func newFixtureFetcher(t *testing.T) *fakeFetcher {
	t.Helper()
	f := &fakeFetcher{
		payloads: make(map[string][]byte),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
	for _, loc := range []string{internetLoc, gdpLoc, electricityLoc, geojsonLoc} {
		data, err := os.ReadFile(filepath.FromSlash(loc))
		require.NoError(t, err)
		f.payloads[loc] = data
	}
	return f
}

func (f *fakeFetcher) failFor(location string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[location] = times
}

func (f *fakeFetcher) callCount(location string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[location]
}

func (f *fakeFetcher) Fetch(_ context.Context, location string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[location]++
	if n := f.failures[location]; n != 0 {
		if n > 0 {
			f.failures[location] = n - 1
		}
		return nil, fmt.Errorf("%w: %s: connection refused", domain.ErrSourceUnavailable, location)
	}
	data, ok := f.payloads[location]
	if !ok {
		return nil, fmt.Errorf("%w: %s: not found", domain.ErrSourceUnavailable, location)
	}
	return data, nil
}

func fixtureSettings() pipeline.Settings {
	return pipeline.Settings{
		Sources: []pipeline.SourceSpec{
			{Name: pipeline.FieldInternet, Field: pipeline.FieldInternet, Location: internetLoc, Format: domain.FormatLong, Harmonize: true},
			{Name: pipeline.FieldGDP, Field: pipeline.FieldGDP, Location: gdpLoc, Format: domain.FormatWide},
			{Name: pipeline.FieldElectricity, Field: pipeline.FieldElectricity, Location: electricityLoc, Format: domain.FormatWide},
		},
		GeoJSON:     geojsonLoc,
		Parse:       pipeline.DefaultParseOptions(),
		Concurrency: 2,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
