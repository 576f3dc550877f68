package domain

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"87.5", 87.5, true},
		{"87.5%", 87.5, true},
		{" 12 % ", 12, true},
		{"0.42", 0.42, true},
		{"-3", -3, true},
		{"", 0, false},
		{"%", 0, false},
		{"n/a", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseValue(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseYear(t *testing.T) {
	y, ok := ParseYear(" 2019 ")
	assert.True(t, ok)
	assert.Equal(t, 2019, y)

	y, ok = ParseYear("2019.0")
	assert.True(t, ok)
	assert.Equal(t, 2019, y)

	_, ok = ParseYear("2019.5")
	assert.False(t, ok)
	_, ok = ParseYear("")
	assert.False(t, ok)
	_, ok = ParseYear("year")
	assert.False(t, ok)

	for _, in := range []string{"1e20", "-1e20", "99999", "-5", "1e4"} {
		_, ok = ParseYear(in)
		assert.False(t, ok, in)
	}
	y, ok = ParseYear("2.019e3")
	assert.True(t, ok)
	assert.Equal(t, 2019, y)
}

func syntheticObservations(fractions, percentages int) []Observation {
	obs := make([]Observation, 0, fractions+percentages)
	for i := 0; i < fractions; i++ {
		obs = append(obs, Observation{Code: fmt.Sprintf("F%02d", i%100), Year: 2000 + i/100, Value: 0.5})
	}
	for i := 0; i < percentages; i++ {
		obs = append(obs, Observation{Code: fmt.Sprintf("P%02d", i%100), Year: 2000 + i/100, Value: 55})
	}
	return obs
}

func TestFractionHeuristic(t *testing.T) {
	h := DefaultFractionHeuristic()

	t.Run("majority fractions are scaled", func(t *testing.T) {
		obs := syntheticObservations(250, 150) // 62.5%
		require.True(t, h.Harmonize(obs))
		assert.Equal(t, 50.0, obs[0].Value)
		assert.Equal(t, 5500.0, obs[len(obs)-1].Value)
	})

	t.Run("all-fraction table lands in percent range", func(t *testing.T) {
		obs := syntheticObservations(400, 0)
		obs[0].Value = 1
		obs[1].Value = 0.001
		require.True(t, h.Harmonize(obs))
		for _, o := range obs {
			assert.GreaterOrEqual(t, o.Value, 0.0)
			assert.LessOrEqual(t, o.Value, 100.0)
		}
		assert.Equal(t, 100.0, obs[0].Value)
	})

	t.Run("minority fractions are left alone", func(t *testing.T) {
		obs := syntheticObservations(200, 200) // 50%
		require.False(t, h.Harmonize(obs))
		assert.Equal(t, 0.5, obs[0].Value)
		assert.Equal(t, 55.0, obs[len(obs)-1].Value)
	})

	t.Run("exactly at threshold is not scaled", func(t *testing.T) {
		obs := syntheticObservations(240, 160) // 60%
		assert.False(t, h.Harmonize(obs))
	})

	t.Run("only the first sample is inspected but every value is scaled", func(t *testing.T) {
		obs := syntheticObservations(400, 600)
		require.True(t, h.Harmonize(obs))
		assert.Equal(t, 50.0, obs[399].Value)
		assert.Equal(t, 5500.0, obs[999].Value)
	})

	t.Run("zero and values above one are not fractions", func(t *testing.T) {
		obs := []Observation{{Value: 0}, {Value: 0}, {Value: 1}, {Value: 1.5}}
		assert.InDelta(t, 0.25, h.FractionShare(obs), 1e-9)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, 0.0, h.FractionShare(nil))
		assert.False(t, h.Harmonize(nil))
	})
}

type countingUnits struct{ calls int }

func (c *countingUnits) Harmonize(obs []Observation) bool {
	c.calls++
	for i := range obs {
		obs[i].Value = -obs[i].Value
	}
	return true
}

func TestParseLong(t *testing.T) {
	t.Run("coerces percent cells and normalizes codes", func(t *testing.T) {
		payload := "\ufeffEntity,Code,Year,Individuals using the Internet (% of population)\r\n" +
			"France, fra ,2020,85%\r\n" +
			"France,FRA,2021,86.1 %\r\n" +
			"World,,2021,63\r\n" +
			"Chile,CHL,,80\r\n" +
			"Chile,CHL,2021,\r\n" +
			"Chile,CHL,2022,abc\r\n"
		obs, stats, err := ParseLong([]byte(payload), nil, DefaultFractionHeuristic())
		require.NoError(t, err)
		require.Len(t, obs, 2)
		assert.Equal(t, Observation{Code: "FRA", Year: 2020, Value: 85, Name: "France"}, obs[0])
		assert.Equal(t, 86.1, obs[1].Value)
		assert.Equal(t, ParseStats{RowsRead: 6, Observations: 2, Dropped: 4}, stats)
	})

	t.Run("fraction encoded table is scaled", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("Code,Year,Value\n")
		for i := 0; i < 10; i++ {
			fmt.Fprintf(&b, "C%02d,2020,0.%d5\n", i, i)
		}
		obs, stats, err := ParseLong([]byte(b.String()), nil, DefaultFractionHeuristic())
		require.NoError(t, err)
		assert.True(t, stats.Scaled)
		assert.InDelta(t, 5.0, obs[0].Value, 1e-9)
		assert.InDelta(t, 95.0, obs[9].Value, 1e-9)
	})

	t.Run("out of range years are dropped", func(t *testing.T) {
		payload := "Code,Year,Value\nUSA,1e20,50\nUSA,2019,80\nFRA,-1e20,40\n"
		obs, stats, err := ParseLong([]byte(payload), nil, KeepUnits{})
		require.NoError(t, err)
		require.Len(t, obs, 1)
		assert.Equal(t, 2019, obs[0].Year)
		assert.Equal(t, 2, stats.Dropped)
	})

	t.Run("injected strategy runs once per table", func(t *testing.T) {
		units := &countingUnits{}
		obs, stats, err := ParseLong([]byte("Code,Year,Value\nFRA,2020,5\nDEU,2020,6\n"), nil, units)
		require.NoError(t, err)
		assert.Equal(t, 1, units.calls)
		assert.True(t, stats.Scaled)
		assert.Equal(t, -5.0, obs[0].Value)
	})

	t.Run("nil payload is unavailable", func(t *testing.T) {
		_, _, err := ParseLong(nil, nil, nil)
		assert.ErrorIs(t, err, ErrSourceUnavailable)
	})

	t.Run("unknown header is a schema mismatch", func(t *testing.T) {
		_, _, err := ParseLong([]byte("Entity,Code,Population\nFrance,FRA,67\n"), nil, nil)
		assert.ErrorIs(t, err, ErrSchemaMismatch)
	})

	t.Run("no valid rows", func(t *testing.T) {
		_, stats, err := ParseLong([]byte("Code,Year,Value\n,2020,1\nFRA,,2\n"), nil, nil)
		assert.ErrorIs(t, err, ErrNoDataParsed)
		assert.Equal(t, 2, stats.Dropped)
	})

	t.Run("custom alias table", func(t *testing.T) {
		aliases := AliasTable{
			ColumnCode:  {"iso3"},
			ColumnYear:  {"period"},
			ColumnValue: {"obs value"},
		}
		obs, _, err := ParseLong([]byte("ISO3,Period,OBS_VALUE\nfra,2020,3.5\n"), aliases, KeepUnits{})
		require.NoError(t, err)
		assert.Equal(t, []Observation{{Code: "FRA", Year: 2020, Value: 3.5}}, obs)
	})
}

func TestParseWide(t *testing.T) {
	obs, stats, err := ParseWide([]byte(wideFixture), 20, KeepUnits{})
	require.NoError(t, err)
	assert.Equal(t, ParseStats{RowsRead: 3, Observations: 5, Dropped: 1}, stats)

	want := []Observation{
		{Code: "FRA", Year: 2019, Value: 40494.9, Name: "France"},
		{Code: "FRA", Year: 2020, Value: 39179.7, Name: "France"},
		{Code: "FRA", Year: 2021, Value: 43659.0, Name: "France"},
		{Code: "USA", Year: 2019, Value: 65120.4, Name: "United States"},
		{Code: "USA", Year: 2021, Value: 70219.5, Name: "United States"},
	}
	assert.Equal(t, want, obs)
}

func TestParseWide_Failures(t *testing.T) {
	_, _, err := ParseWide(nil, 20, nil)
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	_, _, err = ParseWide([]byte("Country Name,Country Code,2020\nAruba,ABW,\n"), 20, nil)
	assert.ErrorIs(t, err, ErrNoDataParsed)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "ok", ErrorKind(nil))
	assert.Equal(t, "source_unavailable", ErrorKind(fmt.Errorf("fetch: %w", ErrSourceUnavailable)))
	assert.Equal(t, "schema_mismatch", ErrorKind(ErrSchemaMismatch))
	assert.Equal(t, "no_data_parsed", ErrorKind(ErrNoDataParsed))
	assert.Equal(t, "error", ErrorKind(assert.AnError))
}
