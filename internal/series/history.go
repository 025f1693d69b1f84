package series

// DefaultMaxPoints caps each series history.
const DefaultMaxPoints = 10000

// History is the capped collection of points for one series.
//
// Storage keeps append order; Snapshot and trimming use (timestamp,
// sequence) order. Not safe for concurrent use.
type History struct {
	points    []DataPoint
	maxPoints int
}

// NewHistory creates an empty history capped at maxPoints.
// A non-positive cap falls back to DefaultMaxPoints.
func NewHistory(maxPoints int) *History {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &History{maxPoints: maxPoints}
}

// Append adds a point and trims the history when it exceeds the cap.
// Returns the number of points dropped by the trim.
func (h *History) Append(p DataPoint) int {
	h.points = append(h.points, p)
	if len(h.points) <= h.maxPoints {
		return 0
	}

	// Keep the newest points by time, not by arrival.
	Sort(h.points)
	dropped := len(h.points) - h.maxPoints
	kept := make([]DataPoint, h.maxPoints, h.maxPoints+1)
	copy(kept, h.points[dropped:])
	h.points = kept
	return dropped
}

// Len returns the number of stored points.
func (h *History) Len() int {
	return len(h.points)
}

// MaxPoints returns the configured cap.
func (h *History) MaxPoints() int {
	return h.maxPoints
}

// Copy returns the stored points in storage order. The result shares no
// memory with the history.
func (h *History) Copy() []DataPoint {
	out := make([]DataPoint, len(h.points))
	copy(out, h.points)
	return out
}

// Keys returns the originating keys of all stored points.
func (h *History) Keys() []string {
	keys := make([]string, len(h.points))
	for i, p := range h.points {
		keys[i] = p.Key
	}
	return keys
}
