// Package stats implements the welder's counters and the periodic
// progress callback, throttled to a configurable notification period.
package stats

import (
	"time"

	"github.com/google/uuid"
)

// Counters accumulates one run's totals.
type Counters struct {
	LinesProcessed   int64
	GcodesProcessed  int64
	PointsCompressed int64
	ArcsCreated      int64
	Warnings         int64
	SourceBytes      int64
	TargetBytes      int64
}

// Progress is the periodic report handed to the callback. RunID
// correlates log lines when several runs log to the same sink.
type Progress struct {
	RunID            uuid.UUID
	PercentComplete  float64
	SecondsElapsed   float64
	SecondsRemaining float64
	GcodesProcessed  int64
	LinesProcessed   int64
	PointsCompressed int64
	ArcsCreated      int64
	SourceFileSize   int64
	TargetFileSize   int64
}

// Callback reports progress and returns false to request cooperative
// cancellation.
type Callback func(Progress) bool

// Reporter throttles Callback invocations to approximately once per
// notification period, tracks elapsed wall time, and estimates remaining
// time linearly from bytes consumed.
type Reporter struct {
	runID            uuid.UUID
	period           time.Duration
	callback         Callback
	sourceSize       int64
	startedAt        time.Time
	lastNotification time.Time
	counters         *Counters
}

// NewReporter creates a Reporter. period <= 0 disables throttling (every
// Tick call invokes the callback); callback may be nil, in which case Tick
// is a no-op that never cancels.
func NewReporter(runID uuid.UUID, period time.Duration, sourceSize int64, counters *Counters, callback Callback) *Reporter {
	now := now()
	return &Reporter{
		runID:      runID,
		period:     period,
		callback:   callback,
		sourceSize: sourceSize,
		startedAt:  now,
		counters:   counters,
	}
}

// now is a seam so tests can avoid relying on wall-clock timing; production
// code always uses time.Now.
var now = time.Now

// Tick reports progress if the notification period has elapsed since the
// last report (or this is the first call), and returns false if the
// callback requested cancellation.
func (r *Reporter) Tick() bool {
	if r.callback == nil {
		return true
	}

	current := now()
	if !r.lastNotification.IsZero() && current.Sub(r.lastNotification) < r.period {
		return true
	}
	r.lastNotification = current

	elapsed := current.Sub(r.startedAt).Seconds()
	var percent, remaining float64
	if r.sourceSize > 0 {
		percent = 100 * float64(r.counters.SourceBytes) / float64(r.sourceSize)
		if r.counters.SourceBytes > 0 && elapsed > 0 {
			rate := float64(r.counters.SourceBytes) / elapsed
			remaining = float64(r.sourceSize-r.counters.SourceBytes) / rate
		}
	}

	return r.callback(Progress{
		RunID:            r.runID,
		PercentComplete:  percent,
		SecondsElapsed:   elapsed,
		SecondsRemaining: remaining,
		GcodesProcessed:  r.counters.GcodesProcessed,
		LinesProcessed:   r.counters.LinesProcessed,
		PointsCompressed: r.counters.PointsCompressed,
		ArcsCreated:      r.counters.ArcsCreated,
		SourceFileSize:   r.sourceSize,
		TargetFileSize:   r.counters.TargetBytes,
	})
}

// Final reports a last, unthrottled progress update — used once at
// end-of-file regardless of when the last periodic tick fired.
func (r *Reporter) Final() Progress {
	elapsed := now().Sub(r.startedAt).Seconds()
	return Progress{
		RunID:            r.runID,
		PercentComplete:  100,
		SecondsElapsed:   elapsed,
		SecondsRemaining: 0,
		GcodesProcessed:  r.counters.GcodesProcessed,
		LinesProcessed:   r.counters.LinesProcessed,
		PointsCompressed: r.counters.PointsCompressed,
		ArcsCreated:      r.counters.ArcsCreated,
		SourceFileSize:   r.sourceSize,
		TargetFileSize:   r.counters.TargetBytes,
	}
}
