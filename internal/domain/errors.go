package domain

import "errors"

// Whole-table failure kinds. Malformed individual rows are never reported as
// errors; they are counted in ParseStats.Dropped.
var (
	// ErrSourceUnavailable means the payload could not be retrieved.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSchemaMismatch means a required logical column could not be resolved.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrNoDataParsed means the table parsed but yielded zero observations.
	ErrNoDataParsed = errors.New("no data parsed")
)

// ErrorKind returns a stable label for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, ErrNoDataParsed):
		return "no_data_parsed"
	default:
		return "error"
	}
}
