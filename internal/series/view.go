package series

import "time"

// PauseState is the state of a view's pause toggle.
type PauseState int

const (
	// StateRunning follows ingestion live.
	StateRunning PauseState = iota

	// StatePaused freezes the view at the captured reference.
	StatePaused
)

// String returns a human-readable name for the state.
func (s PauseState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// ReferenceSource supplies the newest usable timestamp of a series at the
// moment a view is paused.
type ReferenceSource interface {
	PauseReference(seriesID string) (time.Time, bool)
}

// View is the per-viewer state for one series: pause toggle plus the
// display window. Transitions are only triggered by the viewer; there is no
// automatic resume.
type View struct {
	SeriesID      string
	WindowMinutes float64

	state  PauseState
	ref    time.Time
	hasRef bool
}

// NewView creates a running view with no window.
func NewView(seriesID string) *View {
	return &View{SeriesID: seriesID}
}

// State returns the current pause state.
func (v *View) State() PauseState {
	return v.state
}

// Paused reports whether the view is frozen.
func (v *View) Paused() bool {
	return v.state == StatePaused
}

// Reference returns the captured pause reference, if any.
func (v *View) Reference() (time.Time, bool) {
	return v.ref, v.hasRef
}

// Pause captures the series' newest timestamp as the frozen reference.
// Pausing an already paused view keeps the original reference.
func (v *View) Pause(src ReferenceSource) {
	if v.state == StatePaused {
		return
	}
	v.state = StatePaused
	v.ref, v.hasRef = src.PauseReference(v.SeriesID)
}

// Resume discards the reference and follows ingestion again.
func (v *View) Resume() {
	v.state = StateRunning
	v.ref = time.Time{}
	v.hasRef = false
}

// Toggle flips between running and paused and returns the new state.
func (v *View) Toggle(src ReferenceSource) PauseState {
	if v.state == StatePaused {
		v.Resume()
	} else {
		v.Pause(src)
	}
	return v.state
}

// SetWindow sets the display window; negative values mean no limit.
func (v *View) SetWindow(minutes float64) {
	if minutes < 0 {
		minutes = 0
	}
	v.WindowMinutes = minutes
}

// Query builds the read query for the view's current state.
func (v *View) Query(fields []string) Query {
	return Query{
		Paused:        v.state == StatePaused,
		PauseRef:      v.ref,
		HasPauseRef:   v.hasRef,
		WindowMinutes: v.WindowMinutes,
		Fields:        fields,
	}
}
