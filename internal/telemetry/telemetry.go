package telemetry

import (
	"time"
)

// Sample is a single decoded telemetry reading from the vehicle.
// Optional fields are nil when the wire packet did not carry a usable
// value for them.
type Sample struct {
	Speed         *float64  `json:"speed,omitempty"`         // Speed in m/s
	RPM           *int      `json:"rpm,omitempty"`           // Engine RPM
	Gear          *int      `json:"gear,omitempty"`          // -1 reverse, 0 neutral, 1..9 forward
	LateralG      *float64  `json:"lateralG,omitempty"`      // Lateral acceleration in g
	LongitudinalG *float64  `json:"longitudinalG,omitempty"` // Longitudinal acceleration in g
	CapturedAt    time.Time `json:"capturedAt"`              // Local wall clock at decode time
}

// Moving reports whether the sample indicates vehicle movement above
// the given speed threshold. Samples without a speed value never count
// as moving.
func (s *Sample) Moving(threshold float64) bool {
	return s.Speed != nil && *s.Speed > threshold
}
