// Package series holds the data model of the live series cache: normalized
// data points, the bounded per-series history, read-time windowing and the
// pause state machine.
//
// Nothing in this package locks. The engine owns concurrency; History is only
// ever touched under the engine's mutex, and ApplyWindow works on private
// copies.
package series

import (
	"cmp"
	"math"
	"slices"
	"time"
)

// TimestampField is the reserved payload field holding the point's time.
const TimestampField = "timestamp"

// Field is one named payload value. Value is one of int64, float64, string,
// bool or nil.
type Field struct {
	Name  string
	Value any
}

// DataPoint is a normalized record stored in a series history.
type DataPoint struct {
	SeriesID string
	Key      string

	Timestamp    time.Time
	HasTimestamp bool
	// RawTimestamp holds a non-string timestamp value exactly as decoded.
	RawTimestamp any

	// Sequence breaks timestamp ties; taken from the numeric key suffix.
	Sequence int64

	Fields []Field
}

// Get returns the value of a named field.
func (p DataPoint) Get(name string) (any, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Number returns a field as float64 when it holds a numeric value.
func (p DataPoint) Number(name string) (float64, bool) {
	v, ok := p.Get(name)
	if !ok {
		return 0, false
	}
	return AsNumber(v)
}

// AsNumber converts int64 and float64 field values. NaN and ±Inf are not
// numbers here; they cannot be plotted or summarized.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Compare orders points by (timestamp, sequence). Points without a usable
// timestamp sort before every timed point.
func Compare(a, b DataPoint) int {
	if a.HasTimestamp != b.HasTimestamp {
		if !a.HasTimestamp {
			return -1
		}
		return 1
	}
	if a.HasTimestamp {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.Sequence, b.Sequence)
}

// Sort orders points in place. The sort is stable so equal keys keep their
// arrival order.
func Sort(points []DataPoint) {
	slices.SortStableFunc(points, Compare)
}

// IsSorted reports whether points are in (timestamp, sequence) order.
func IsSorted(points []DataPoint) bool {
	return slices.IsSortedFunc(points, Compare)
}

// Latest returns the maximum usable timestamp among points.
func Latest(points []DataPoint) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, p := range points {
		if !p.HasTimestamp {
			continue
		}
		if !found || p.Timestamp.After(latest) {
			latest = p.Timestamp
			found = true
		}
	}
	return latest, found
}
