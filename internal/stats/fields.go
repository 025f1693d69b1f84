// Package stats summarizes series fields for the dashboard and the data API,
// and formats the exit summary.
package stats

import (
	"math"
	"slices"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-flexgraph/internal/series"
)

// digestCompression bounds the centroids per digest (~100 centroids, ~10KB).
const digestCompression = 100

// FieldSummary describes the numeric values of one field over a set of points.
type FieldSummary struct {
	Field string  `json:"field"`
	Count int     `json:"count"`
	Last  float64 `json:"last"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
}

// NumericFields returns the sorted union of field names that carry an int or
// float value in at least one point. The timestamp field is never numeric.
func NumericFields(points []series.DataPoint) []string {
	seen := make(map[string]struct{})
	for _, p := range points {
		for _, f := range p.Fields {
			if f.Name == series.TimestampField {
				continue
			}
			if _, ok := series.AsNumber(f.Value); ok {
				seen[f.Name] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Summarize computes the summary of one field. Points where the field is
// missing or non-numeric are skipped; ok is false when none remain.
func Summarize(points []series.DataPoint, field string) (FieldSummary, bool) {
	s := FieldSummary{Field: field, Min: math.Inf(1), Max: math.Inf(-1)}
	td := tdigest.NewWithCompression(digestCompression)

	var sum float64
	for _, p := range points {
		v, ok := p.Number(field)
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		s.Count++
		s.Last = v
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
		td.Add(v, 1)
	}

	if s.Count == 0 {
		return FieldSummary{Field: field}, false
	}

	s.Mean = sum / float64(s.Count)
	s.P50 = td.Quantile(0.50)
	s.P95 = td.Quantile(0.95)
	return s, true
}

// SummarizeAll summarizes each field in order, skipping fields with no values.
func SummarizeAll(points []series.DataPoint, fields []string) []FieldSummary {
	out := make([]FieldSummary, 0, len(fields))
	for _, f := range fields {
		if s, ok := Summarize(points, f); ok {
			out = append(out, s)
		}
	}
	return out
}

// SelectFields keeps the prior selection, in its order, restricted to the
// available fields. An empty result falls back to every available field.
func SelectFields(current, available []string) []string {
	kept := make([]string, 0, len(current))
	for _, f := range current {
		if slices.Contains(available, f) && !slices.Contains(kept, f) {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return slices.Clone(available)
	}
	return kept
}
