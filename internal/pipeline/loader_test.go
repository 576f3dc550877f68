package pipeline_test

import (
	"context"
	"testing"

	"github.com/couchcryptid/indicator-etl/internal/config"
	"github.com/couchcryptid/indicator-etl/internal/domain"
	"github.com/couchcryptid/indicator-etl/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadIndicator_LongHarmonized(t *testing.T) {
	f := newFixtureFetcher(t)
	spec := fixtureSettings().Sources[0]

	ix, stats, err := pipeline.LoadIndicator(context.Background(), f, spec, pipeline.DefaultParseOptions())
	require.NoError(t, err)

	assert.Equal(t, domain.ParseStats{RowsRead: 9, Observations: 8, Dropped: 1, Scaled: true}, stats)
	assert.Equal(t, pipeline.FieldInternet, ix.Field())
	assert.Equal(t, []string{"DEU", "FRA", "KEN", "OWID_WRL", "TCD", "USA"}, ix.Codes())

	o, ok := ix.Latest("FRA")
	require.True(t, ok)
	assert.Equal(t, 2021, o.Year)
	assert.InDelta(t, 86, o.Value, 1e-9)
	assert.Equal(t, "France", o.Name)
}

func TestLoadIndicator_WideKeepsUnits(t *testing.T) {
	f := newFixtureFetcher(t)
	spec := fixtureSettings().Sources[1]

	ix, stats, err := pipeline.LoadIndicator(context.Background(), f, spec, pipeline.DefaultParseOptions())
	require.NoError(t, err)

	assert.Equal(t, domain.ParseStats{RowsRead: 5, Observations: 12, Dropped: 1}, stats)
	assert.False(t, ix.Has("TCD"))

	o, ok := ix.LatestAtOrBefore("USA", 2020)
	require.True(t, ok)
	assert.InDelta(t, 63528.6, o.Value, 1e-9)
	assert.Equal(t, "United States", o.Name)
}

func TestLoadIndicator_Failures(t *testing.T) {
	tests := []struct {
		name    string
		spec    pipeline.SourceSpec
		payload []byte
		wantErr error
	}{
		{
			name:    "unreachable",
			spec:    pipeline.SourceSpec{Name: "x", Field: "x", Location: "missing.csv", Format: domain.FormatLong},
			wantErr: domain.ErrSourceUnavailable,
		},
		{
			name:    "missing value column",
			spec:    pipeline.SourceSpec{Name: "x", Field: "x", Location: "bad.csv", Format: domain.FormatLong},
			payload: []byte("Entity,Code,Year,Population\nFrance,FRA,2020,67\n"),
			wantErr: domain.ErrSchemaMismatch,
		},
		{
			name:    "no rows parse",
			spec:    pipeline.SourceSpec{Name: "x", Field: "x", Location: "empty.csv", Format: domain.FormatWide},
			payload: []byte(`"Country Name","Country Code","2020"` + "\n" + `"France","FRA",""` + "\n"),
			wantErr: domain.ErrNoDataParsed,
		},
		{
			name:    "unknown format",
			spec:    pipeline.SourceSpec{Name: "x", Field: "x", Location: "a.xml", Format: "xml"},
			payload: []byte("<xml/>"),
			wantErr: domain.ErrSchemaMismatch,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixtureFetcher(t)
			if tc.payload != nil {
				f.payloads[tc.spec.Location] = tc.payload
			}
			ix, _, err := pipeline.LoadIndicator(context.Background(), f, tc.spec, pipeline.DefaultParseOptions())
			require.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, ix)
		})
	}
}

func TestLoadContinents(t *testing.T) {
	f := newFixtureFetcher(t)

	m, err := pipeline.LoadContinents(context.Background(), f, geojsonLoc)
	require.NoError(t, err)
	c, _ := m.Lookup("USA")
	assert.Equal(t, "North America", c)
	c, _ = m.Lookup("FRA")
	assert.Equal(t, "Europe", c)
	c, _ = m.Lookup("TCD")
	assert.Equal(t, "Africa", c)
	c, _ = m.Lookup("RUS")
	assert.Equal(t, "Europe", c)

	f.failFor(geojsonLoc, -1)
	m, err = pipeline.LoadContinents(context.Background(), f, geojsonLoc)
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
	c, _ = m.Lookup("USA")
	assert.Equal(t, "Americas", c, "fallback table when GeoJSON is unreachable")

	m, err = pipeline.LoadContinents(context.Background(), f, "")
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Positive(t, m.Len())
}

func TestSourcesFromConfig(t *testing.T) {
	cfg := &config.Config{
		InternetSource:        "a.csv",
		GDPSource:             "b.csv",
		ElectricitySource:     "c.csv",
		HeaderScanLines:       7,
		UnitSampleSize:        50,
		UnitFractionThreshold: 0.7,
	}

	sources := pipeline.SourcesFromConfig(cfg)
	require.Len(t, sources, 3)
	assert.Equal(t, pipeline.SourceSpec{
		Name: "internet", Field: "internet", Location: "a.csv", Format: domain.FormatLong, Harmonize: true,
	}, sources[0])
	assert.Equal(t, domain.FormatWide, sources[1].Format)
	assert.False(t, sources[1].Harmonize)
	assert.Equal(t, "c.csv", sources[2].Location)

	opts := pipeline.ParseOptionsFromConfig(cfg)
	assert.Equal(t, 7, opts.HeaderScanLines)
	assert.Equal(t, domain.FractionHeuristic{SampleSize: 50, Threshold: 0.7}, opts.Units)
}
