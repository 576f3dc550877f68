package pipeline

import (
	"sort"
	"time"

	"github.com/couchcryptid/indicator-etl/internal/domain"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// minDistributionCodes is the coverage below which Distribution backfills
// each code with its latest value at or before the requested year.
const minDistributionCodes = 20

// Session is one immutable, fully loaded snapshot of every source. A reload
// builds a new Session; readers holding the old one are unaffected.
type Session struct {
	ID         string                       `json:"id"`
	LoadedAt   time.Time                    `json:"loaded_at"`
	Indices    map[string]*domain.Index     `json:"-"`
	Continents *domain.ContinentMap         `json:"-"`
	Stats      map[string]domain.ParseStats `json:"stats"`
	// Failures maps a source name to the reason it contributed nothing.
	Failures map[string]string `json:"failures"`
}

// Index returns the index for field, or nil when that source failed.
func (s *Session) Index(field string) *domain.Index {
	if s == nil {
		return nil
	}
	return s.Indices[field]
}

// SourceFailures returns a copy of Failures that is never nil, so reports
// always carry the field.
func (s *Session) SourceFailures() map[string]string {
	out := make(map[string]string)
	if s == nil {
		return out
	}
	for name, reason := range s.Failures {
		out[name] = reason
	}
	return out
}

// FailedSources returns the names of the failed sources in ascending order.
func (s *Session) FailedSources() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Failures))
	for name := range s.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Years returns the distinct adoption years, most recent first.
func (s *Session) Years() []int {
	return s.Index(FieldInternet).Years()
}

// DefaultYear is the most recent adoption year.
func (s *Session) DefaultYear() (int, bool) {
	years := s.Years()
	if len(years) == 0 {
		return 0, false
	}
	return years[0], true
}

// Lookup returns the latest observation of field for code, or, when year is
// non-nil, the latest one at or before *year.
func (s *Session) Lookup(field, code string, year *int) (domain.Observation, bool) {
	ix := s.Index(field)
	if year != nil {
		return ix.LatestAtOrBefore(code, *year)
	}
	return ix.Latest(code)
}

// TopAdopters returns up to n latest adoption observations, restricted to
// codes whose latest year equals the most recent latest year, highest first.
func (s *Session) TopAdopters(n int) []domain.Observation {
	latest := s.Index(FieldInternet).LatestAll()
	if len(latest) == 0 || n <= 0 {
		return nil
	}
	maxYear := latest[0].Year
	for _, o := range latest[1:] {
		maxYear = max(maxYear, o.Year)
	}

	top := make([]domain.Observation, 0, len(latest))
	for _, o := range latest {
		if o.Year == maxYear {
			top = append(top, o)
		}
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].Value > top[j].Value })
	if len(top) > n {
		top = top[:n]
	}
	return top
}

// Distribution returns one adoption observation per code for year, ordered
// by code. When fewer than 20 codes report that exact year, every code is
// backfilled with its latest observation at or before year instead.
func (s *Session) Distribution(year int) []domain.Observation {
	ix := s.Index(FieldInternet)
	codes := ix.Codes()

	exact := make([]domain.Observation, 0, len(codes))
	for _, code := range codes {
		series := ix.Series(code)
		for i := len(series) - 1; i >= 0; i-- {
			if series[i].Year == year {
				exact = append(exact, series[i])
				break
			}
		}
	}
	if len(exact) >= minDistributionCodes {
		return exact
	}

	backfill := make([]domain.Observation, 0, len(codes))
	for _, code := range codes {
		if o, ok := ix.LatestAtOrBefore(code, year); ok {
			backfill = append(backfill, o)
		}
	}
	return backfill
}

// Prosperity joins adoption and GDP per capita as of year. Codes without a
// positive GDP value are excluded. Rows are ordered by display name.
func (s *Session) Prosperity(year int) []domain.Row {
	rows := domain.Reconcile(s.prosperitySpec(year, false))
	sortByName(rows)
	return rows
}

// ContinentSummary aggregates the prosperity join per continent: row count,
// mean adoption and mean GDP per capita. Unlabelled codes are excluded.
func (s *Session) ContinentSummary(year int) []domain.Group {
	rows := domain.Reconcile(s.prosperitySpec(year, true))
	return domain.Aggregate(rows, domain.ByCategory, FieldInternet, FieldGDP)
}

func (s *Session) prosperitySpec(year int, byContinent bool) domain.JoinSpec {
	spec := domain.JoinSpec{
		Mode:    domain.JoinAtOrBefore,
		Year:    year,
		Primary: domain.Indicator{Field: FieldInternet, Index: s.Index(FieldInternet)},
		Others: []domain.Indicator{
			{Field: FieldGDP, Index: s.Index(FieldGDP), Required: true, Accept: domain.Positive},
		},
	}
	if byContinent {
		spec.Categories = s.continents()
		spec.RequireCategory = true
	}
	return spec
}

// ElectricityGap joins each code's latest adoption and electricity access and
// derives gap = electricity - internet. Codes missing either are excluded.
func (s *Session) ElectricityGap() []domain.Row {
	return domain.Reconcile(domain.JoinSpec{
		Mode:    domain.JoinLatest,
		Primary: domain.Indicator{Field: FieldInternet, Index: s.Index(FieldInternet)},
		Others: []domain.Indicator{
			{Field: FieldElectricity, Index: s.Index(FieldElectricity), Required: true},
		},
		Derived:    []domain.Derived{domain.Difference(FieldGap, FieldElectricity, FieldInternet)},
		Categories: s.continents(),
	})
}

// Comparison is the side-by-side view of two codes. A nil Row means the code
// has no adoption data.
type Comparison struct {
	A        *domain.Row       `json:"a"`
	B        *domain.Row       `json:"b"`
	Failures map[string]string `json:"failures"`
}

// Compare returns the latest adoption, GDP and gap for two codes. Absent
// values stay absent rather than zero.
func (s *Session) Compare(codeA, codeB string) Comparison {
	return Comparison{A: s.compareRow(codeA), B: s.compareRow(codeB), Failures: s.SourceFailures()}
}

func (s *Session) compareRow(code string) *domain.Row {
	code = domain.NormalizeCode(code)
	internet := s.Index(FieldInternet)
	if !internet.Has(code) {
		return nil
	}
	single := domain.NewIndex(FieldInternet, internet.Series(code))
	rows := domain.Reconcile(domain.JoinSpec{
		Mode:    domain.JoinLatest,
		Primary: domain.Indicator{Field: FieldInternet, Index: single},
		Others: []domain.Indicator{
			{Field: FieldGDP, Index: s.Index(FieldGDP)},
			{Field: FieldElectricity, Index: s.Index(FieldElectricity)},
		},
		Derived:    []domain.Derived{domain.Difference(FieldGap, FieldElectricity, FieldInternet)},
		Categories: s.continents(),
	})
	if len(rows) == 0 {
		return nil
	}
	return &rows[0]
}

func (s *Session) continents() domain.Categorizer {
	if s == nil || s.Continents == nil {
		return nil
	}
	return s.Continents
}

// sortByName orders rows by display name using English collation, falling
// back to code for equal names.
func sortByName(rows []domain.Row) {
	c := collate.New(language.English, collate.Loose)
	sort.SliceStable(rows, func(i, j int) bool {
		if cmp := c.CompareString(rows[i].Name, rows[j].Name); cmp != 0 {
			return cmp < 0
		}
		return rows[i].Code < rows[j].Code
	})
}
