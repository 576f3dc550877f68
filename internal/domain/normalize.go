package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// UnitStrategy decides, once per table, whether parsed values need rescaling
// and applies the rescale in place. It reports whether values were changed.
type UnitStrategy interface {
	Harmonize(obs []Observation) bool
}

// FractionHeuristic treats a table as fraction-encoded when more than
// Threshold of its first SampleSize observations lie in (0, 1], and then
// multiplies every value by 100.
type FractionHeuristic struct {
	SampleSize int
	Threshold  float64
}

// DefaultFractionHeuristic samples 400 observations with a 60% threshold.
func DefaultFractionHeuristic() FractionHeuristic {
	return FractionHeuristic{SampleSize: 400, Threshold: 0.6}
}

// FractionShare returns the share of sampled values in (0, 1].
func (h FractionHeuristic) FractionShare(obs []Observation) float64 {
	n := len(obs)
	if h.SampleSize > 0 && n > h.SampleSize {
		n = h.SampleSize
	}
	if n == 0 {
		return 0
	}
	frac := 0
	for _, o := range obs[:n] {
		if o.Value > 0 && o.Value <= 1 {
			frac++
		}
	}
	return float64(frac) / float64(n)
}

// Harmonize implements UnitStrategy.
func (h FractionHeuristic) Harmonize(obs []Observation) bool {
	if h.FractionShare(obs) <= h.Threshold {
		return false
	}
	for i := range obs {
		obs[i].Value *= 100
	}
	return true
}

// KeepUnits leaves values as published. World Bank tables already carry
// percentages or currency amounts.
type KeepUnits struct{}

// Harmonize implements UnitStrategy.
func (KeepUnits) Harmonize([]Observation) bool { return false }

// NormalizeCode trims and uppercases an alpha-3 code.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ParseValue parses a numeric cell, accepting a trailing percent sign
// ("87.5 %" -> 87.5). Empty, non-numeric and non-finite cells are rejected.
func ParseValue(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Calendar bounds for a year cell.
const (
	minYear = 0
	maxYear = 9999
)

// ParseYear parses a year cell. "2019" and "2019.0" are accepted; fractional
// years and years outside 0-9999 are rejected.
func ParseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if y, err := strconv.Atoi(s); err == nil {
		if y < minYear || y > maxYear {
			return 0, false
		}
		return y, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || v != math.Trunc(v) || v < minYear || v > maxYear {
		return 0, false
	}
	return int(v), true
}

// NormalizeLong converts long-format rows into observations. Rows with a
// missing code, year or value are dropped silently and counted in the stats.
// Unit harmonization runs once over the full result.
func NormalizeLong(t Table, s Schema, units UnitStrategy) ([]Observation, ParseStats, error) {
	stats := ParseStats{RowsRead: len(t.Rows) + t.Malformed, Dropped: t.Malformed}
	obs := make([]Observation, 0, len(t.Rows))

	for _, row := range t.Rows {
		code := NormalizeCode(s.Cell(row, ColumnCode))
		year, okYear := ParseYear(s.Cell(row, ColumnYear))
		value, okValue := ParseValue(s.Cell(row, ColumnValue))
		if code == "" || !okYear || !okValue {
			stats.Dropped++
			continue
		}
		obs = append(obs, Observation{
			Code:  code,
			Year:  year,
			Value: value,
			Name:  s.Cell(row, ColumnName),
		})
	}

	if len(obs) == 0 {
		return nil, stats, fmt.Errorf("%w: %d rows read", ErrNoDataParsed, stats.RowsRead)
	}
	if units != nil {
		stats.Scaled = units.Harmonize(obs)
	}
	stats.Observations = len(obs)
	return obs, stats, nil
}

// NormalizeWide converts wide-format rows into observations, one per non-empty
// year cell. A row yielding no observation is counted as dropped.
func NormalizeWide(t Table, s Schema, units UnitStrategy) ([]Observation, ParseStats, error) {
	stats := ParseStats{RowsRead: len(t.Rows) + t.Malformed, Dropped: t.Malformed}
	obs := make([]Observation, 0, len(t.Rows))

	for _, row := range t.Rows {
		code := NormalizeCode(s.Cell(row, ColumnCode))
		if code == "" {
			stats.Dropped++
			continue
		}
		name := s.Cell(row, ColumnName)
		before := len(obs)
		for _, yc := range s.YearColumns {
			if yc.Index >= len(row) {
				continue
			}
			value, ok := ParseValue(row[yc.Index])
			if !ok {
				continue
			}
			obs = append(obs, Observation{Code: code, Year: yc.Year, Value: value, Name: name})
		}
		if len(obs) == before {
			stats.Dropped++
		}
	}

	if len(obs) == 0 {
		return nil, stats, fmt.Errorf("%w: %d rows read", ErrNoDataParsed, stats.RowsRead)
	}
	if units != nil {
		stats.Scaled = units.Harmonize(obs)
	}
	stats.Observations = len(obs)
	return obs, stats, nil
}

// ParseLong reads, resolves and normalizes a long-format payload. A nil
// payload is reported as ErrSourceUnavailable.
func ParseLong(payload []byte, aliases AliasTable, units UnitStrategy) ([]Observation, ParseStats, error) {
	if payload == nil {
		return nil, ParseStats{}, ErrSourceUnavailable
	}
	if aliases == nil {
		aliases = LongAliases
	}
	t, err := ReadTable(payload)
	if err != nil {
		return nil, ParseStats{}, err
	}
	s, err := aliases.Resolve(t.Header, ColumnCode, ColumnYear, ColumnValue)
	if err != nil {
		return nil, ParseStats{}, err
	}
	return NormalizeLong(t, s, units)
}

// ParseWide reads, resolves and normalizes a wide-format payload. A nil
// payload is reported as ErrSourceUnavailable.
func ParseWide(payload []byte, scanLines int, units UnitStrategy) ([]Observation, ParseStats, error) {
	if payload == nil {
		return nil, ParseStats{}, ErrSourceUnavailable
	}
	t, err := ReadWideTable(payload, scanLines)
	if err != nil {
		return nil, ParseStats{}, err
	}
	s, err := ResolveWide(t.Header)
	if err != nil {
		return nil, ParseStats{}, err
	}
	return NormalizeWide(t, s, units)
}
