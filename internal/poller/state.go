package poller

// State represents what the poll loop is doing.
type State int

const (
	// StateIdle is the initial state and the state between polls.
	StateIdle State = iota

	// StatePolling indicates a poll cycle is in progress.
	StatePolling

	// StateBackoff indicates the last poll failed and the loop is waiting.
	StateBackoff

	// StateStopped indicates the loop has exited.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Healthy reports whether the store answered the last poll.
func (s State) Healthy() bool {
	return s == StateIdle || s == StatePolling
}
