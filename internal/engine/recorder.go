package engine

import "time"

// Recorder receives engine events for metrics. Calls are made outside the
// engine lock.
type Recorder interface {
	RecordPoll(d time.Duration, err error)
	RecordIngested(seriesID string)
	RecordRejected(reason string)
	RecordExpired()
	RecordTrimmed(seriesID string, n int)
	RecordReconfigure()
	SetSeriesCount(n int)
}

// NoopRecorder discards all events.
type NoopRecorder struct{}

func (NoopRecorder) RecordPoll(time.Duration, error) {}
func (NoopRecorder) RecordIngested(string)           {}
func (NoopRecorder) RecordRejected(string)           {}
func (NoopRecorder) RecordExpired()                  {}
func (NoopRecorder) RecordTrimmed(string, int)       {}
func (NoopRecorder) RecordReconfigure()              {}
func (NoopRecorder) SetSeriesCount(int)              {}
