package metrics

import (
	"reflect"
	"testing"
)

func TestFailureRows(t *testing.T) {
	tests := []struct {
		name  string
		stats Stats
		want  []FailureRow
	}{
		{
			name: "no failures",
			want: nil,
		},
		{
			name: "by probe, busiest first",
			stats: Stats{
				StatusBuckets: map[string]map[string]int{"http": {"500": 4, "TIMEOUT": 2}},
				Probes: map[string]ProbeStats{
					"/status":                {},
					"/error":                 {FailureCodes: map[string]int{"500": 4}},
					"/calculatehashesbcrypt": {FailureCodes: map[string]int{"TIMEOUT": 2}},
				},
			},
			want: []FailureRow{
				{Probe: "/error", Code: "500", Count: 4},
				{Probe: "/calculatehashesbcrypt", Code: "TIMEOUT", Count: 2},
			},
		},
		{
			name: "ties by probe then code",
			stats: Stats{
				Probes: map[string]ProbeStats{
					"/error":  {FailureCodes: map[string]int{"503": 1, "500": 1}},
					"/health": {FailureCodes: map[string]int{"404": 1}},
				},
			},
			want: []FailureRow{
				{Probe: "/error", Code: "500", Count: 1},
				{Probe: "/error", Code: "503", Count: 1},
				{Probe: "/health", Code: "404", Count: 1},
			},
		},
		{
			name: "run-wide buckets without probes",
			stats: Stats{
				StatusBuckets: map[string]map[string]int{"http": {"502": 1, "500": 3}},
			},
			want: []FailureRow{
				{Code: "500", Count: 3},
				{Code: "502", Count: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FailureRows(tt.stats); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FailureRows() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorKinds(t *testing.T) {
	got := ErrorKinds(map[string]int{ErrKindHTTP: 2, ErrKindTimeout: 5, ErrKindDNS: 2})
	want := []ErrorKindRow{
		{Kind: ErrKindTimeout, Count: 5},
		{Kind: ErrKindDNS, Count: 2},
		{Kind: ErrKindHTTP, Count: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ErrorKinds() = %v, want %v", got, want)
	}
	if rows := ErrorKinds(nil); len(rows) != 0 {
		t.Errorf("ErrorKinds(nil) = %v, want empty", rows)
	}
}
