package match

import "path/filepath"

// BreakdownRow summarizes one input path.
type BreakdownRow struct {
	File string
	Counters
}

// Breakdown projects the final counters onto paths, in the given order.
// Paths that were never readable report zeros.
func (a *Aggregator) Breakdown(paths []string) []BreakdownRow {
	rows := make([]BreakdownRow, 0, len(paths))
	for _, p := range paths {
		base := filepath.Base(p)
		rows = append(rows, BreakdownRow{File: base, Counters: a.Counters(base)})
	}
	return rows
}
