// Package analytics computes per-session reductions over persisted
// telemetry frames.
package analytics

import (
	"github.com/guven8/beamng-telemetry-platform/internal/storage"
)

// Summary aggregates a session's frames. Fields are nil when the
// underlying data is absent (no frames, or no values for the metric).
type Summary struct {
	DurationSeconds *float64 `json:"duration_seconds"`
	TopSpeed        *float64 `json:"top_speed"`
	AvgSpeed        *float64 `json:"avg_speed"`
	MaxRPM          *int64   `json:"max_rpm"`
}

// Summarize reduces a session and its frames. Open sessions use the
// last frame timestamp in place of the missing end time.
func Summarize(sess *storage.SessionRecord, frames []*storage.FrameRecord) Summary {
	var s Summary

	switch {
	case sess.EndTime != nil:
		d := sess.EndTime.Sub(sess.StartTime).Seconds()
		s.DurationSeconds = &d
	case len(frames) > 0:
		last := frames[0].Timestamp
		for _, f := range frames[1:] {
			if f.Timestamp.After(last) {
				last = f.Timestamp
			}
		}
		d := last.Sub(sess.StartTime).Seconds()
		s.DurationSeconds = &d
	}

	var (
		speedSum   float64
		speedCount int
	)
	for _, f := range frames {
		if f.Speed != nil {
			speedSum += *f.Speed
			speedCount++
			if s.TopSpeed == nil || *f.Speed > *s.TopSpeed {
				s.TopSpeed = f.Speed
			}
		}
		if f.RPM != nil && (s.MaxRPM == nil || *f.RPM > *s.MaxRPM) {
			s.MaxRPM = f.RPM
		}
	}
	if speedCount > 0 {
		avg := speedSum / float64(speedCount)
		s.AvgSpeed = &avg
	}

	return s
}
