package domain

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Column is a logical column the engine knows how to read.
type Column string

const (
	ColumnCode  Column = "code"
	ColumnYear  Column = "year"
	ColumnValue Column = "value"
	ColumnName  Column = "name"
)

// AliasTable maps each logical column to an ordered list of acceptable header
// names. Aliases are compared after NormalizeColumnName, so spelling variants
// that differ only in punctuation or case need not be listed twice.
type AliasTable map[Column][]string

// LongAliases resolves long-format adoption tables.
var LongAliases = AliasTable{
	ColumnCode: {"code", "country code"},
	ColumnYear: {"year"},
	ColumnName: {"entity", "country", "country name"},
	ColumnValue: {
		"share of individuals using the internet",
		"internet users (share of population)",
		"individuals using the internet % of population",
		"individuals using the internet (% of population)",
		"value",
	},
}

// WideAliases resolves World Bank style wide tables. Values live in the year
// columns, so only code and name are looked up here.
var WideAliases = AliasTable{
	ColumnCode: {"country code", "code"},
	ColumnName: {"country name", "country", "entity"},
}

const defaultHeaderScanLines = 20

var (
	// nonAlnumRe collapses punctuation and whitespace runs in header names.
	nonAlnumRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)

	// wideHeaderRe recognizes the header row of a World Bank download:
	// `Country Name,` or `"Country Name",`.
	wideHeaderRe = regexp.MustCompile(`^"?Country Name"?,`)

	// yearColumnRe matches "2019" and "2019 [YR2019]". The bracketed year must
	// repeat the leading one, which is checked in yearOfColumn since RE2 has no
	// backreferences.
	yearColumnRe = regexp.MustCompile(`^(\d{4})(?:\s*\[YR(\d{4})\])?$`)

	delimiterReplacer = strings.NewReplacer("\t", ",", ";", ",")
)

// isZeroWidth reports characters that are invisible in spreadsheets but break
// exact header matches.
func isZeroWidth(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
		return true
	}
	return false
}

// NormalizeColumnName folds a header cell into its comparison form:
// "Share of individuals using the Internet\u200b" -> "share of individuals using the internet".
func NormalizeColumnName(s string) string {
	t := transform.Chain(runes.Remove(runes.Predicate(isZeroWidth)), norm.NFKC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = strings.Map(func(r rune) rune {
			if isZeroWidth(r) {
				return -1
			}
			return r
		}, s)
	}
	folded = nonAlnumRe.ReplaceAllString(folded, " ")
	return strings.ToLower(strings.TrimSpace(folded))
}

// YearColumn is a wide-format column holding one year's values.
type YearColumn struct {
	Name  string
	Index int
	Year  int
}

// Schema is the result of resolving logical columns against a header row.
type Schema struct {
	Header      []string
	Columns     map[Column]string
	YearColumns []YearColumn

	positions map[string]int
}

// Has reports whether the logical column was resolved.
func (s Schema) Has(c Column) bool {
	_, ok := s.Columns[c]
	return ok
}

// Cell returns the trimmed value of logical column c in row, or "" when the
// column is unresolved or the row is short.
func (s Schema) Cell(row []string, c Column) string {
	name, ok := s.Columns[c]
	if !ok {
		return ""
	}
	i := s.positions[name]
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Resolve maps the logical columns in the table onto physical header names.
// Duplicate headers that normalize to the same form resolve to the first one.
// It fails with ErrSchemaMismatch when any required column is missing.
func (a AliasTable) Resolve(header []string, required ...Column) (Schema, error) {
	byNorm := make(map[string]string, len(header))
	positions := make(map[string]int, len(header))
	for i, h := range header {
		if _, seen := positions[h]; !seen {
			positions[h] = i
		}
		n := NormalizeColumnName(h)
		if n == "" {
			continue
		}
		if _, seen := byNorm[n]; !seen {
			byNorm[n] = h
		}
	}

	s := Schema{
		Header:    header,
		Columns:   make(map[Column]string, len(a)),
		positions: positions,
	}
	for col, aliases := range a {
		for _, alias := range aliases {
			if physical, ok := byNorm[NormalizeColumnName(alias)]; ok {
				s.Columns[col] = physical
				break
			}
		}
	}

	var missing []string
	for _, col := range required {
		if !s.Has(col) {
			missing = append(missing, string(col))
		}
	}
	if len(missing) > 0 {
		return Schema{}, fmt.Errorf("%w: missing %s in header %q", ErrSchemaMismatch, strings.Join(missing, ", "), header)
	}
	return s, nil
}

// ResolveWide resolves the code and name columns and collects every year column.
func ResolveWide(header []string) (Schema, error) {
	s, err := WideAliases.Resolve(header, ColumnCode)
	if err != nil {
		return Schema{}, err
	}
	for i, h := range header {
		if year, ok := yearOfColumn(h); ok {
			s.YearColumns = append(s.YearColumns, YearColumn{Name: h, Index: i, Year: year})
		}
	}
	if len(s.YearColumns) == 0 {
		return Schema{}, fmt.Errorf("%w: no year columns in header %q", ErrSchemaMismatch, header)
	}
	return s, nil
}

// yearOfColumn returns the year a wide-format header denotes.
func yearOfColumn(name string) (int, bool) {
	m := yearColumnRe.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return 0, false
	}
	if m[2] != "" && m[2] != m[1] {
		return 0, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return year, true
}

// Table is a header row plus its data rows.
type Table struct {
	Header []string
	Rows   [][]string
	// Malformed counts lines the CSV reader rejected.
	Malformed int
}

// cleanText strips a leading byte-order mark and converts CRLF/CR line endings.
func cleanText(payload []byte) string {
	s := strings.TrimPrefix(string(payload), "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// ReadTable parses comma-separated text whose first line is the header.
func ReadTable(payload []byte) (Table, error) {
	return readCSV(cleanText(payload))
}

// ReadWideTable locates the "Country Name" header within the first scanLines
// lines, discards the metadata above it, and parses the rest. Tab and
// semicolon delimiters are rewritten to commas first. When no header signature
// is found the first line is taken as the header.
func ReadWideTable(payload []byte, scanLines int) (Table, error) {
	if scanLines <= 0 {
		scanLines = defaultHeaderScanLines
	}
	lines := strings.Split(cleanText(payload), "\n")
	for i := range lines {
		lines[i] = delimiterReplacer.Replace(lines[i])
	}

	headerIdx := 0
	for i := 0; i < len(lines) && i < scanLines; i++ {
		if wideHeaderRe.MatchString(lines[i]) {
			headerIdx = i
			break
		}
	}
	return readCSV(strings.Join(lines[headerIdx:], "\n"))
}

func readCSV(text string) (Table, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return Table{}, fmt.Errorf("%w: read header: %v", ErrSchemaMismatch, err)
	}
	if len(header) == 0 || (len(header) == 1 && strings.TrimSpace(header[0]) == "") {
		return Table{}, fmt.Errorf("%w: empty header", ErrSchemaMismatch)
	}

	t := Table{Header: header}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Malformed++
			continue
		}
		if isBlankRow(row) {
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimFunc(c, unicode.IsSpace) != "" {
			return false
		}
	}
	return true
}
