package metrics

import "sort"

// FailureRow counts failed requests of one probe that ended with one status
// code. Transport failures carry their fallback code, such as TIMEOUT.
type FailureRow struct {
	Probe string
	Code  string
	Count int
}

// FailureRows lists the failures in stats by probe and code, most frequent
// first. Stats recorded without probe names fall back to the run-wide
// buckets, with an empty Probe.
func FailureRows(stats Stats) []FailureRow {
	var rows []FailureRow
	for name, probe := range stats.Probes {
		for code, n := range probe.FailureCodes {
			rows = append(rows, FailureRow{Probe: name, Code: code, Count: n})
		}
	}
	if len(rows) == 0 {
		for _, codes := range stats.StatusBuckets {
			for code, n := range codes {
				rows = append(rows, FailureRow{Code: code, Count: n})
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Probe != b.Probe {
			return a.Probe < b.Probe
		}
		return a.Code < b.Code
	})
	return rows
}

// ErrorKindRow is one entry of the error breakdown.
type ErrorKindRow struct {
	Kind  string
	Count int
}

// ErrorKinds orders an error breakdown by count, then by kind.
func ErrorKinds(errs map[string]int) []ErrorKindRow {
	rows := make([]ErrorKindRow, 0, len(errs))
	for kind, n := range errs {
		rows = append(rows, ErrorKindRow{Kind: kind, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Kind < rows[j].Kind
	})
	return rows
}
