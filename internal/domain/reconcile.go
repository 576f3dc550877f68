package domain

import "math"

// JoinMode selects how each indicator's observation is chosen for a code.
type JoinMode int

const (
	// JoinLatest takes every indicator's own latest observation.
	JoinLatest JoinMode = iota
	// JoinAtOrBefore takes every indicator's latest observation not after the
	// target year; the row year is the oldest of them.
	JoinAtOrBefore
)

// Indicator is one index taking part in a join.
type Indicator struct {
	// Field names the value in the output row. Defaults to Index.Field().
	Field string
	Index *Index
	// Required drops the code when this indicator does not resolve.
	Required bool
	// Accept optionally filters values; a rejected value counts as unresolved.
	Accept func(float64) bool
}

func (in Indicator) field() string {
	if in.Field != "" {
		return in.Field
	}
	return in.Index.Field()
}

// Positive accepts strictly positive values, e.g. GDP on a log axis.
func Positive(v float64) bool { return v > 0 }

// Derived computes an extra field from the resolved values of a row. It
// returns false when the inputs it needs are absent.
type Derived struct {
	Name    string
	Compute func(values map[string]float64) (float64, bool)
}

// Difference derives name = minuend - subtrahend when both are present and finite.
func Difference(name, minuend, subtrahend string) Derived {
	return Derived{
		Name: name,
		Compute: func(values map[string]float64) (float64, bool) {
			a, okA := values[minuend]
			b, okB := values[subtrahend]
			if !okA || !okB || !isFinite(a) || !isFinite(b) {
				return 0, false
			}
			return a - b, true
		},
	}
}

// Categorizer labels a code with a grouping key such as a continent.
type Categorizer interface {
	Lookup(code string) (string, bool)
}

// JoinSpec describes a cross-indicator join. The primary indicator supplies the
// candidate codes and is always required.
type JoinSpec struct {
	Mode    JoinMode
	Year    int
	Primary Indicator
	Others  []Indicator
	Derived []Derived

	Categories      Categorizer
	RequireCategory bool
}

// Row is one reconciled country. Year is the oldest contributing year in
// JoinAtOrBefore mode and the primary indicator's year in JoinLatest mode;
// Years always carries each indicator's own year.
type Row struct {
	Code     string             `json:"code"`
	Name     string             `json:"name"`
	Year     int                `json:"year"`
	Category string             `json:"category,omitempty"`
	Values   map[string]float64 `json:"values"`
	Years    map[string]int     `json:"years"`
	Derived  map[string]float64 `json:"derived,omitempty"`
}

// Value returns a resolved or derived field.
func (r Row) Value(field string) (float64, bool) {
	if v, ok := r.Values[field]; ok {
		return v, true
	}
	v, ok := r.Derived[field]
	return v, ok
}

// Reconcile joins the indicators of spec on country code. Codes come from the
// primary index in ascending order; ordering for display is left to the caller.
// A nil or empty primary index yields no rows, as does any required indicator
// whose index is nil.
func Reconcile(spec JoinSpec) []Row {
	if spec.Primary.Index.Len() == 0 {
		return nil
	}
	primary := spec.Primary
	primary.Required = true
	indicators := append([]Indicator{primary}, spec.Others...)

	var rows []Row
	for _, code := range primary.Index.Codes() {
		row, ok := reconcileCode(spec, indicators, code)
		if ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func reconcileCode(spec JoinSpec, indicators []Indicator, code string) (Row, bool) {
	row := Row{
		Code:   code,
		Values: make(map[string]float64, len(indicators)),
		Years:  make(map[string]int, len(indicators)),
	}

	for i, in := range indicators {
		o, ok := resolve(in, code, spec.Mode, spec.Year)
		if !ok {
			if in.Required {
				return Row{}, false
			}
			continue
		}
		f := in.field()
		row.Values[f] = o.Value
		row.Years[f] = o.Year
		if row.Name == "" {
			row.Name = o.Name
		}
		switch {
		case i == 0:
			row.Year = o.Year
		case spec.Mode == JoinAtOrBefore && o.Year < row.Year:
			row.Year = o.Year
		}
	}
	if row.Name == "" {
		row.Name = code
	}

	if spec.Categories != nil {
		if cat, ok := spec.Categories.Lookup(code); ok {
			row.Category = cat
		} else if spec.RequireCategory {
			return Row{}, false
		}
	}

	for _, d := range spec.Derived {
		if v, ok := d.Compute(row.Values); ok && isFinite(v) {
			if row.Derived == nil {
				row.Derived = make(map[string]float64, len(spec.Derived))
			}
			row.Derived[d.Name] = v
		}
	}
	return row, true
}

func resolve(in Indicator, code string, mode JoinMode, year int) (Observation, bool) {
	var (
		o  Observation
		ok bool
	)
	if mode == JoinAtOrBefore {
		o, ok = in.Index.LatestAtOrBefore(code, year)
	} else {
		o, ok = in.Index.Latest(code)
	}
	if !ok || !isFinite(o.Value) {
		return Observation{}, false
	}
	if in.Accept != nil && !in.Accept(o.Value) {
		return Observation{}, false
	}
	return o, true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
