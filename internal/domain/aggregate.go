package domain

import "sort"

// Group summarizes the rows sharing one key.
type Group struct {
	Key   string             `json:"key"`
	Count int                `json:"count"`
	Means map[string]float64 `json:"means"`
}

// ByCategory keys rows by their category label.
func ByCategory(r Row) string { return r.Category }

// Aggregate groups rows by key and computes, per group, the row count and the
// unweighted mean of each named field. A field's mean is taken over the rows
// that carry it and is omitted when none do. Rows with an empty key are
// skipped, so no group is ever emitted with a zero count. Groups are ordered by
// key.
func Aggregate(rows []Row, key func(Row) string, fields ...string) []Group {
	type acc struct {
		count int
		sums  map[string]float64
		ns    map[string]int
	}
	byKey := make(map[string]*acc)

	for _, r := range rows {
		k := key(r)
		if k == "" {
			continue
		}
		a, ok := byKey[k]
		if !ok {
			a = &acc{sums: make(map[string]float64), ns: make(map[string]int)}
			byKey[k] = a
		}
		a.count++
		for _, f := range fields {
			if v, ok := r.Value(f); ok {
				a.sums[f] += v
				a.ns[f]++
			}
		}
	}

	groups := make([]Group, 0, len(byKey))
	for k, a := range byKey {
		g := Group{Key: k, Count: a.count, Means: make(map[string]float64, len(fields))}
		for _, f := range fields {
			if n := a.ns[f]; n > 0 {
				g.Means[f] = a.sums[f] / float64(n)
			}
		}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}
