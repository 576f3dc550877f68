package domain

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed continents.yaml
var fallbackYAML []byte

// ContinentSource records which pass labelled a code.
type ContinentSource string

const (
	SourceGeoJSON  ContinentSource = "geojson"
	SourceFallback ContinentSource = "fallback"
	SourcePinned   ContinentSource = "pinned"
)

// Property names tried, in order, on each GeoJSON feature.
var (
	isoProperties       = []string{"ISO3166-1-Alpha-3", "ISO_A3", "ADM0_A3", "SOV_A3"}
	continentProperties = []string{"CONTINENT", "continent", "CONTINENT_OCE", "region_un", "subregion"}
)

// alpha3Re rejects placeholders such as Natural Earth's "-99" so the next
// property in isoProperties is tried.
var alpha3Re = regexp.MustCompile(`^[A-Z]{3}$`)

type fallbackTable struct {
	Continents map[string][]string `yaml:"continents"`
	Pinned     map[string]string   `yaml:"pinned"`
}

var loadFallback = sync.OnceValues(func() (fallbackTable, error) {
	var t fallbackTable
	if err := yaml.Unmarshal(fallbackYAML, &t); err != nil {
		return fallbackTable{}, fmt.Errorf("decode continents.yaml: %w", err)
	}
	return t, nil
})

// ContinentMap is an immutable code -> continent mapping.
type ContinentMap struct {
	labels  map[string]string
	sources map[string]ContinentSource
}

// Lookup implements Categorizer.
func (m *ContinentMap) Lookup(code string) (string, bool) {
	if m == nil {
		return "", false
	}
	c, ok := m.labels[NormalizeCode(code)]
	return c, ok
}

// Source reports which pass labelled code, or "" when it is unlabelled.
func (m *ContinentMap) Source(code string) ContinentSource {
	if m == nil {
		return ""
	}
	return m.sources[NormalizeCode(code)]
}

// Len returns the number of labelled codes.
func (m *ContinentMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.labels)
}

// Counts returns how many codes each pass labelled.
func (m *ContinentMap) Counts() map[ContinentSource]int {
	out := make(map[ContinentSource]int, 3)
	if m == nil {
		return out
	}
	for _, s := range m.sources {
		out[s]++
	}
	return out
}

// ClassifyContinents builds the continent map from a GeoJSON payload overlaid
// with the embedded fallback table. The returned map is always usable: when
// the payload is nil or malformed, err describes the problem and the map holds
// the fallback labels alone.
func ClassifyContinents(geojson []byte) (*ContinentMap, error) {
	m := &ContinentMap{
		labels:  make(map[string]string),
		sources: make(map[string]ContinentSource),
	}

	primaryErr := classifyGeoJSON(m, geojson)

	fb, err := loadFallback()
	if err != nil {
		return m, err
	}
	for continent, codes := range fb.Continents {
		for _, code := range codes {
			code = NormalizeCode(code)
			if _, ok := m.labels[code]; !ok {
				m.labels[code] = continent
				m.sources[code] = SourceFallback
			}
		}
	}
	for code, continent := range fb.Pinned {
		code = NormalizeCode(code)
		m.labels[code] = continent
		m.sources[code] = SourcePinned
	}
	return m, primaryErr
}

type featureCollection struct {
	Features []struct {
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

func classifyGeoJSON(m *ContinentMap, payload []byte) error {
	if payload == nil {
		return ErrSourceUnavailable
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return fmt.Errorf("%w: decode geojson: %v", ErrSchemaMismatch, err)
	}
	if _, ok := probe["features"]; !ok {
		return fmt.Errorf("%w: geojson has no features", ErrSchemaMismatch)
	}
	var fc featureCollection
	if err := json.Unmarshal(payload, &fc); err != nil {
		return fmt.Errorf("%w: decode geojson features: %v", ErrSchemaMismatch, err)
	}

	for _, f := range fc.Features {
		iso := firstProperty(f.Properties, isoProperties, func(s string) bool {
			return alpha3Re.MatchString(NormalizeCode(s))
		})
		continent := firstProperty(f.Properties, continentProperties, nil)
		if iso == "" || continent == "" {
			continue
		}
		code := NormalizeCode(iso)
		m.labels[code] = continent
		m.sources[code] = SourceGeoJSON
	}
	return nil
}

// firstProperty returns the first non-empty trimmed property among keys that
// also satisfies valid (when given).
func firstProperty(props map[string]any, keys []string, valid func(string) bool) string {
	for _, k := range keys {
		s := strings.TrimSpace(propertyString(props[k]))
		if s == "" {
			continue
		}
		if valid != nil && !valid(s) {
			continue
		}
		return s
	}
	return ""
}

func propertyString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
