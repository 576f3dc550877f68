package domain

// Observation is a single indicator value for one country in one year.
type Observation struct {
	Code  string  `json:"code"`
	Year  int     `json:"year"`
	Value float64 `json:"value"`
	Name  string  `json:"name,omitempty"`
}

// Format identifies the physical layout of an indicator table.
type Format string

const (
	FormatLong    Format = "long"
	FormatWide    Format = "wide"
	FormatGeoJSON Format = "geojson"
)

// ParseStats reports how many data rows were read and how many produced no
// observation. For wide tables a row counts as dropped when none of its year
// cells yielded a value.
type ParseStats struct {
	RowsRead     int  `json:"rows_read"`
	Observations int  `json:"observations"`
	Dropped      int  `json:"rows_dropped"`
	Scaled       bool `json:"scaled"`
}
