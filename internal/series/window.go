package series

import "time"

// Query describes a read-time view of a series. It is never stored.
type Query struct {
	// Paused freezes the view at PauseRef when HasPauseRef is set.
	Paused      bool
	PauseRef    time.Time
	HasPauseRef bool

	// WindowMinutes limits the view to the minutes before the reference.
	// Zero or negative means no limit.
	WindowMinutes float64

	// Fields is the caller's display selection. Reads do not filter on it.
	Fields []string
}

// Reference returns the timestamp windowing is anchored to: the pause
// reference while paused, otherwise the newest usable timestamp.
func (q Query) Reference(points []DataPoint) (time.Time, bool) {
	if q.Paused && q.HasPauseRef {
		return q.PauseRef, true
	}
	return Latest(points)
}

// Window returns the window length as a duration.
func (q Query) Window() time.Duration {
	if q.WindowMinutes <= 0 {
		return 0
	}
	return time.Duration(q.WindowMinutes * float64(time.Minute))
}

// ApplyWindow filters a sorted snapshot according to q. The input slice is
// not modified; the result keeps the input order.
func ApplyWindow(points []DataPoint, q Query) []DataPoint {
	if len(points) == 0 {
		return []DataPoint{}
	}

	out := points
	if q.Paused && q.HasPauseRef {
		out = filter(out, func(p DataPoint) bool {
			return p.HasTimestamp && !p.Timestamp.After(q.PauseRef)
		})
	}

	window := q.Window()
	if window > 0 {
		if ref, ok := q.Reference(out); ok {
			cutoff := ref.Add(-window)
			out = filter(out, func(p DataPoint) bool {
				return p.HasTimestamp && !p.Timestamp.Before(cutoff)
			})
		}
	}

	if len(out) == len(points) {
		// Nothing filtered; hand back a private copy.
		cp := make([]DataPoint, len(points))
		copy(cp, points)
		return cp
	}
	return out
}

func filter(points []DataPoint, keep func(DataPoint) bool) []DataPoint {
	out := make([]DataPoint, 0, len(points))
	for _, p := range points {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
