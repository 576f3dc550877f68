package domain

import (
	"math"
	"sort"
)

// Index holds every observation of one indicator, grouped by country code and
// ordered by year. It is built once and never mutated; a reload builds a new
// Index. A nil *Index behaves as an empty one, which is how a failed source
// contributes nothing to a join.
type Index struct {
	field      string
	series     map[string][]Observation
	codes      []string
	duplicates int
}

// NewIndex builds an index for the named indicator field. Observations with an
// empty code or a non-finite value are skipped; construction never fails.
func NewIndex(field string, obs []Observation) *Index {
	ix := &Index{
		field:  field,
		series: make(map[string][]Observation),
	}
	for _, o := range obs {
		o.Code = NormalizeCode(o.Code)
		if o.Code == "" || math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			continue
		}
		ix.series[o.Code] = append(ix.series[o.Code], o)
	}

	ix.codes = make([]string, 0, len(ix.series))
	for code, s := range ix.series {
		// Stable keeps input order among equal years, which the tie-breaks
		// in Latest and LatestAtOrBefore rely on.
		sort.SliceStable(s, func(i, j int) bool { return s[i].Year < s[j].Year })
		for i := 1; i < len(s); i++ {
			if s[i].Year == s[i-1].Year {
				ix.duplicates++
			}
		}
		ix.codes = append(ix.codes, code)
	}
	sort.Strings(ix.codes)
	return ix
}

// Field returns the indicator name the index was built for.
func (ix *Index) Field() string {
	if ix == nil {
		return ""
	}
	return ix.field
}

// Len returns the number of codes with at least one observation.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.codes)
}

// Codes returns the indexed codes in ascending order.
func (ix *Index) Codes() []string {
	if ix == nil {
		return nil
	}
	out := make([]string, len(ix.codes))
	copy(out, ix.codes)
	return out
}

// Has reports whether code has any observation.
func (ix *Index) Has(code string) bool {
	if ix == nil {
		return false
	}
	_, ok := ix.series[NormalizeCode(code)]
	return ok
}

// Series returns a copy of the observations for code, ordered by year.
func (ix *Index) Series(code string) []Observation {
	if ix == nil {
		return nil
	}
	s := ix.series[NormalizeCode(code)]
	out := make([]Observation, len(s))
	copy(out, s)
	return out
}

// Duplicates counts observations that share a (code, year) pair with an
// earlier one. Tie-breaks among them are read-order dependent.
func (ix *Index) Duplicates() int {
	if ix == nil {
		return 0
	}
	return ix.duplicates
}

// Latest returns the observation with the greatest year for code. When the
// table repeats that year, the row read last wins.
func (ix *Index) Latest(code string) (Observation, bool) {
	if ix == nil {
		return Observation{}, false
	}
	s := ix.series[NormalizeCode(code)]
	if len(s) == 0 {
		return Observation{}, false
	}
	return s[len(s)-1], true
}

// LatestAtOrBefore returns the observation for code with the greatest year not
// after year. When the table repeats that year, the row read first wins.
func (ix *Index) LatestAtOrBefore(code string, year int) (Observation, bool) {
	if ix == nil {
		return Observation{}, false
	}
	s := ix.series[NormalizeCode(code)]
	i := sort.Search(len(s), func(i int) bool { return s[i].Year > year })
	if i == 0 {
		return Observation{}, false
	}
	best := i - 1
	for best > 0 && s[best-1].Year == s[i-1].Year {
		best--
	}
	return s[best], true
}

// Name returns a display label for code: the latest observation's name, else
// any non-empty name, else the code itself.
func (ix *Index) Name(code string) string {
	code = NormalizeCode(code)
	if ix != nil {
		s := ix.series[code]
		for i := len(s) - 1; i >= 0; i-- {
			if s[i].Name != "" {
				return s[i].Name
			}
		}
	}
	return code
}

// Years returns every distinct year present, most recent first.
func (ix *Index) Years() []int {
	if ix == nil {
		return nil
	}
	seen := make(map[int]struct{})
	for _, s := range ix.series {
		for _, o := range s {
			seen[o.Year] = struct{}{}
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

// LatestAll returns the latest observation for every code, ordered by code.
func (ix *Index) LatestAll() []Observation {
	if ix == nil {
		return nil
	}
	out := make([]Observation, 0, len(ix.codes))
	for _, code := range ix.codes {
		s := ix.series[code]
		out = append(out, s[len(s)-1])
	}
	return out
}
