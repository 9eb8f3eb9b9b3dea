package storage

import (
	"database/sql"

	"github.com/guven8/beamng-telemetry-platform/internal/telemetry"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullIntFrom(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func toFrameData(sessionID int64, s *telemetry.Sample) *frameData {
	return &frameData{
		SessionID: sessionID,
		Timestamp: s.CapturedAt.UTC(),
		Speed:     nullFloat(s.Speed),
		RPM:       nullIntFrom(s.RPM),
		Gear:      nullIntFrom(s.Gear),
		GForceX:   nullFloat(s.LateralG),
		GForceY:   nullFloat(s.LongitudinalG),
		Fuel:      sql.NullFloat64{}, // not supplied by OutGauge
	}
}
