package storage

import (
	"database/sql"
	"time"
)

// SessionRecord is one contiguous driving interval. EndTime is nil
// while the session is still open.
type SessionRecord struct {
	ID        int64      `json:"id"`
	SubjectID int64      `json:"subject_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

// FrameRecord is a rate-limited telemetry snapshot attributed to a
// session. Fuel is carried for schema compatibility but the OutGauge
// profile never supplies it.
type FrameRecord struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Speed     *float64  `json:"speed"`
	RPM       *int64    `json:"rpm"`
	Gear      *int64    `json:"gear"`
	GForceX   *float64  `json:"g_force_x"`
	GForceY   *float64  `json:"g_force_y"`
	Fuel      *float64  `json:"fuel"`
}

type frameData struct {
	SessionID int64
	Timestamp time.Time
	Speed     sql.NullFloat64
	RPM       sql.NullInt64
	Gear      sql.NullInt64
	GForceX   sql.NullFloat64
	GForceY   sql.NullFloat64
	Fuel      sql.NullFloat64
}
