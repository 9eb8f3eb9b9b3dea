package stream

import (
	"time"

	"github.com/guven8/beamng-telemetry-platform/internal/telemetry"
)

// Message is the wire-ready JSON object sent to live clients, one per
// sample. Every field is nullable on the wire.
type Message struct {
	Speed     *float64 `json:"speed"`
	RPM       *int     `json:"rpm"`
	Gear      *int     `json:"gear"`
	GForceX   *float64 `json:"g_force_x"`
	GForceY   *float64 `json:"g_force_y"`
	Timestamp *string  `json:"timestamp"`
}

// NewMessage converts a sample into its outbound live representation.
func NewMessage(s *telemetry.Sample) Message {
	m := Message{
		Speed:   s.Speed,
		RPM:     s.RPM,
		Gear:    s.Gear,
		GForceX: s.LateralG,
		GForceY: s.LongitudinalG,
	}
	if !s.CapturedAt.IsZero() {
		ts := s.CapturedAt.UTC().Format(time.RFC3339Nano)
		m.Timestamp = &ts
	}
	return m
}
