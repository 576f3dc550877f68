package pipeline_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/couchcryptid/indicator-etl/internal/domain"
	"github.com/couchcryptid/indicator-etl/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixtureSession(t *testing.T) *pipeline.Session {
	t.Helper()
	e, _ := newTestEngine(newFixtureFetcher(t))
	s, err := e.Load(context.Background())
	require.NoError(t, err)
	return s
}

func codesOf(rows []domain.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Code
	}
	return out
}

func TestSession_Years(t *testing.T) {
	s := loadFixtureSession(t)
	assert.Equal(t, []int{2021, 2020, 2019}, s.Years())

	y, ok := s.DefaultYear()
	require.True(t, ok)
	assert.Equal(t, 2021, y)

	var empty *pipeline.Session
	_, ok = empty.DefaultYear()
	assert.False(t, ok)
}

func TestSession_Lookup(t *testing.T) {
	s := loadFixtureSession(t)

	o, ok := s.Lookup(pipeline.FieldInternet, "fra", nil)
	require.True(t, ok)
	assert.Equal(t, 2021, o.Year)

	year := 2020
	o, ok = s.Lookup(pipeline.FieldInternet, "FRA", &year)
	require.True(t, ok)
	assert.Equal(t, 2019, o.Year)
	assert.InDelta(t, 83, o.Value, 1e-9)

	_, ok = s.Lookup(pipeline.FieldGDP, "TCD", nil)
	assert.False(t, ok)
	_, ok = s.Lookup("population", "FRA", nil)
	assert.False(t, ok)
}

func TestSession_TopAdopters(t *testing.T) {
	s := loadFixtureSession(t)

	top := s.TopAdopters(3)
	require.Len(t, top, 3)
	assert.Equal(t, "USA", top[0].Code)
	assert.Equal(t, "DEU", top[1].Code)
	assert.Equal(t, "FRA", top[2].Code)

	all := s.TopAdopters(10)
	require.Len(t, all, 5, "TCD's latest year is older than the newest")
	for _, o := range all {
		assert.Equal(t, 2021, o.Year)
	}
	assert.Empty(t, s.TopAdopters(0))
}

func TestSession_Distribution_Backfills(t *testing.T) {
	s := loadFixtureSession(t)

	obs := s.Distribution(2021)
	require.Len(t, obs, 6, "fewer than 20 codes in 2021, so every code is backfilled")
	assert.Equal(t, "TCD", obs[4].Code)
	assert.Equal(t, 2020, obs[4].Year)

	assert.Empty(t, s.Distribution(1990))
}

func TestSession_Distribution_ExactYear(t *testing.T) {
	var obs []domain.Observation
	for i := range 25 {
		code := fmt.Sprintf("C%02d", i)
		obs = append(obs, domain.Observation{Code: code, Year: 2020, Value: float64(i)})
		obs = append(obs, domain.Observation{Code: code, Year: 2021, Value: float64(50 + i)})
	}
	obs = append(obs, domain.Observation{Code: "OLD", Year: 2010, Value: 1})
	s := &pipeline.Session{Indices: map[string]*domain.Index{
		pipeline.FieldInternet: domain.NewIndex(pipeline.FieldInternet, obs),
	}}

	got := s.Distribution(2020)
	require.Len(t, got, 25, "enough coverage, so OLD is not backfilled")
	for _, o := range got {
		assert.Equal(t, 2020, o.Year)
	}
}

func TestSession_Prosperity(t *testing.T) {
	s := loadFixtureSession(t)

	rows := s.Prosperity(2021)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"France", "Germany", "Kenya", "United States"},
		[]string{rows[0].Name, rows[1].Name, rows[2].Name, rows[3].Name})
	assert.InDelta(t, 43658.9, rows[0].Values[pipeline.FieldGDP], 1e-9)

	rows = s.Prosperity(2020)
	require.Equal(t, []string{"FRA", "DEU"}, codesOf(rows))
	assert.Equal(t, 2019, rows[0].Year, "row year is the oldest contributing year")
	assert.Equal(t, map[string]int{"internet": 2019, "gdp": 2020}, rows[0].Years)
	assert.Equal(t, 2020, rows[1].Year)
}

func TestSession_ContinentSummary(t *testing.T) {
	s := loadFixtureSession(t)

	groups := s.ContinentSummary(2021)
	require.Len(t, groups, 3)

	assert.Equal(t, "Africa", groups[0].Key)
	assert.Equal(t, 1, groups[0].Count)

	europe := groups[1]
	assert.Equal(t, "Europe", europe.Key)
	assert.Equal(t, 2, europe.Count)
	assert.InDelta(t, 88.5, europe.Means[pipeline.FieldInternet], 1e-9)
	assert.InDelta(t, 47431.25, europe.Means[pipeline.FieldGDP], 1e-6)

	assert.Equal(t, "North America", groups[2].Key)
}

func TestSession_ElectricityGap(t *testing.T) {
	s := loadFixtureSession(t)

	rows := s.ElectricityGap()
	require.Equal(t, []string{"DEU", "FRA", "KEN", "TCD", "USA"}, codesOf(rows))

	tcd := rows[3]
	assert.InDelta(t, 1.7, tcd.Derived[pipeline.FieldGap], 1e-9)
	assert.Equal(t, map[string]int{"internet": 2020, "electricity": 2021}, tcd.Years)
	assert.Equal(t, "Africa", tcd.Category)
	assert.InDelta(t, 47.5, rows[2].Derived[pipeline.FieldGap], 1e-9)
}

func TestSession_Compare(t *testing.T) {
	s := loadFixtureSession(t)

	cmp := s.Compare("fra", "zzz")
	require.NotNil(t, cmp.A)
	assert.Nil(t, cmp.B)
	assert.Equal(t, "FRA", cmp.A.Code)
	assert.InDelta(t, 86, cmp.A.Values[pipeline.FieldInternet], 1e-9)
	assert.InDelta(t, 43658.9, cmp.A.Values[pipeline.FieldGDP], 1e-9)
	assert.InDelta(t, 14, cmp.A.Derived[pipeline.FieldGap], 1e-9)

	cmp = s.Compare("OWID_WRL", "TCD")
	require.NotNil(t, cmp.A)
	_, ok := cmp.A.Value(pipeline.FieldGDP)
	assert.False(t, ok, "absent values stay absent")
	_, ok = cmp.A.Value(pipeline.FieldGap)
	assert.False(t, ok)
	require.NotNil(t, cmp.B)
	_, ok = cmp.B.Value(pipeline.FieldGDP)
	assert.False(t, ok)
}

func TestSession_NilIndicesDegrade(t *testing.T) {
	s := &pipeline.Session{}
	assert.Empty(t, s.Years())
	assert.Empty(t, s.TopAdopters(5))
	assert.Empty(t, s.Distribution(2021))
	assert.Empty(t, s.Prosperity(2021))
	assert.Empty(t, s.ContinentSummary(2021))
	assert.Empty(t, s.ElectricityGap())
	assert.Equal(t, pipeline.Comparison{Failures: map[string]string{}}, s.Compare("FRA", "DEU"))
	assert.NotNil(t, s.SourceFailures())
	assert.Empty(t, s.FailedSources())
}

func TestSession_SourceFailures(t *testing.T) {
	s := &pipeline.Session{Failures: map[string]string{
		pipeline.FieldGDP:         "gdp: source unavailable",
		pipeline.ContinentsSource: "continents: source unavailable",
		pipeline.FieldElectricity: "electricity: no data parsed",
	}}

	assert.Equal(t, []string{pipeline.ContinentsSource, pipeline.FieldElectricity, pipeline.FieldGDP}, s.FailedSources())

	failures := s.SourceFailures()
	assert.Equal(t, s.Failures, failures)
	failures["extra"] = "x"
	assert.NotContains(t, s.Failures, "extra")

	cmp := s.Compare("FRA", "DEU")
	assert.Contains(t, cmp.Failures, pipeline.FieldGDP)
}
