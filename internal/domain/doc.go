// Package domain reconciles country-level indicator tables into a queryable
// time-series model keyed by ISO-3166 alpha-3 country code.
//
// # Sources
//
// Three kinds of payload are accepted, each handed over as raw bytes by a
// retrieval collaborator (nil when the source could not be fetched):
//
//	Long format:  one observation per row, e.g. Our World in Data exports
//	              "Entity,Code,Year,Individuals using the Internet (% of population)"
//	Wide format:  World Bank API_* downloads, a few metadata lines followed by
//	              "Country Name","Country Code",...,"1960","1961",...
//	GeoJSON:      a FeatureCollection whose feature properties carry an alpha-3
//	              code and a continent or region label.
//
// # Schema Resolution
//
// Header names are compared after normalization (zero-width characters removed,
// NFKC folded, non-alphanumeric runs collapsed to a single space, lowercased).
// Each logical column has an ordered alias list; the first alias present wins.
// See [LongAliases] and [WideAliases].
//
// Wide tables are detected by scanning the first lines for a row starting with
// "Country Name," (quoted or not). Year columns match "2019" or "2019 [YR2019]".
//
// # Unit Harmonization
//
// Adoption-rate series are published either as fractions (0.87) or as
// percentages (87). [FractionHeuristic] samples the first 400 parsed
// observations; when more than 60% fall in (0, 1] the whole table is scaled by
// 100. The decision is all-or-nothing per load. A table of genuinely tiny
// percentages will be misread as fractions; that risk is accepted.
//
// # Temporal Queries
//
// [Index.Latest] returns the observation with the greatest year for a code;
// among duplicate (code, year) rows the last one read wins.
// [Index.LatestAtOrBefore] returns the greatest year not after the target; among
// duplicates the first one read wins. Duplicate (code, year) rows are not
// expected in well-formed tables and are counted in [Index.Duplicates].
//
// # Continents
//
// [ClassifyContinents] reads the GeoJSON labels first and overlays the embedded
// fallback table (continents.yaml) only for codes the GeoJSON did not classify.
// RUS is pinned to Europe regardless of either source.
package domain
