package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/indicator-etl/internal/config"
	"github.com/couchcryptid/indicator-etl/internal/domain"
)

// Indicator field names used across the session queries.
const (
	FieldInternet    = "internet"
	FieldGDP         = "gdp"
	FieldElectricity = "electricity"
	FieldGap         = "gap"
)

// Fetcher retrieves the raw bytes behind a source location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// SourceSpec describes one indicator table to load.
type SourceSpec struct {
	Name     string
	Field    string
	Location string
	Format   domain.Format
	// Harmonize applies the fraction-to-percent heuristic.
	Harmonize bool
}

// ParseOptions carries the tunables shared by every source.
type ParseOptions struct {
	HeaderScanLines int
	Units           domain.FractionHeuristic
}

// DefaultParseOptions mirrors the config defaults.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{HeaderScanLines: 20, Units: domain.DefaultFractionHeuristic()}
}

// SourcesFromConfig returns the three indicator sources in load order. The
// adoption series comes first and is the primary for every join.
func SourcesFromConfig(cfg *config.Config) []SourceSpec {
	return []SourceSpec{
		{Name: FieldInternet, Field: FieldInternet, Location: cfg.InternetSource, Format: domain.FormatLong, Harmonize: true},
		{Name: FieldGDP, Field: FieldGDP, Location: cfg.GDPSource, Format: domain.FormatWide},
		{Name: FieldElectricity, Field: FieldElectricity, Location: cfg.ElectricitySource, Format: domain.FormatWide},
	}
}

// ParseOptionsFromConfig builds ParseOptions from the loaded config.
func ParseOptionsFromConfig(cfg *config.Config) ParseOptions {
	return ParseOptions{
		HeaderScanLines: cfg.HeaderScanLines,
		Units: domain.FractionHeuristic{
			SampleSize: cfg.UnitSampleSize,
			Threshold:  cfg.UnitFractionThreshold,
		},
	}
}

// LoadIndicator fetches and parses one source into an index. Every error wraps
// one of the domain sentinel errors.
func LoadIndicator(ctx context.Context, f Fetcher, spec SourceSpec, opts ParseOptions) (*domain.Index, domain.ParseStats, error) {
	payload, err := f.Fetch(ctx, spec.Location)
	if err != nil {
		if !errors.Is(err, domain.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
		return nil, domain.ParseStats{}, err
	}
	if payload == nil {
		payload = []byte{}
	}

	var units domain.UnitStrategy = domain.KeepUnits{}
	if spec.Harmonize {
		units = opts.Units
	}

	var (
		obs   []domain.Observation
		stats domain.ParseStats
	)
	switch spec.Format {
	case domain.FormatLong:
		obs, stats, err = domain.ParseLong(payload, domain.LongAliases, units)
	case domain.FormatWide:
		obs, stats, err = domain.ParseWide(payload, opts.HeaderScanLines, units)
	default:
		return nil, domain.ParseStats{}, fmt.Errorf("%w: unsupported format %q for %s", domain.ErrSchemaMismatch, spec.Format, spec.Name)
	}
	if err != nil {
		return nil, stats, fmt.Errorf("%s: %w", spec.Name, err)
	}
	return domain.NewIndex(spec.Field, obs), stats, nil
}

// LoadContinents fetches the GeoJSON source and classifies codes by continent.
// The returned map is always usable; err reports primary-source degradation.
func LoadContinents(ctx context.Context, f Fetcher, location string) (*domain.ContinentMap, error) {
	var (
		payload  []byte
		fetchErr error
	)
	if location != "" {
		payload, fetchErr = f.Fetch(ctx, location)
		if fetchErr != nil {
			payload = nil
		}
	}
	m, err := domain.ClassifyContinents(payload)
	if fetchErr != nil {
		if !errors.Is(fetchErr, domain.ErrSourceUnavailable) {
			fetchErr = fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, fetchErr)
		}
		return m, fetchErr
	}
	return m, err
}
