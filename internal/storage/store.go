// Package storage persists driving sessions and their telemetry
// frames in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/guven8/beamng-telemetry-platform/internal/telemetry"
)

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    subject_id INTEGER  NOT NULL,
    start_time DATETIME NOT NULL,
    end_time   DATETIME
);

CREATE TABLE IF NOT EXISTS telemetry_frames (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER  NOT NULL REFERENCES sessions (id),
    timestamp  DATETIME NOT NULL,
    speed      REAL,
    rpm        INTEGER,
    gear       INTEGER,
    g_force_x  REAL,
    g_force_y  REAL,
    fuel       REAL
);

CREATE INDEX IF NOT EXISTS idx_sessions_subject ON sessions (subject_id, start_time);
CREATE INDEX IF NOT EXISTS idx_frames_session ON telemetry_frames (session_id, timestamp);
`

// Store handles database operations for sessions and frames.
type Store struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// New creates a store backed by the SQLite database at dbPath.
// Connections are opened lazily and the schema is initialized on first
// write access.
func New(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

func (s *Store) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *Store) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		// Schema must exist before a read-only connection can open it.
		if _, err := s.getWriteDB(); err != nil {
			s.readDBErr = err
			return
		}

		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

const insertSessionSQL = `
INSERT INTO sessions (subject_id, start_time)
VALUES (?, ?)`

// CreateSession opens a new session for the subject and returns its ID.
func (s *Store) CreateSession(ctx context.Context, subjectID int64, startTime time.Time) (sessionID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, subjectID, startTime.UTC())
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

const closeSessionSQL = `
UPDATE sessions
SET end_time = ?
WHERE id = ? AND end_time IS NULL`

// CloseSession marks an open session as ended. Closing an already
// closed or unknown session is an error.
func (s *Store) CloseSession(ctx context.Context, sessionID int64, endTime time.Time) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	result, err := db.ExecContext(ctx, closeSessionSQL, endTime.UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("closing session: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking close result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %d is not open", sessionID)
	}
	return nil
}

const insertFrameSQL = `
INSERT INTO telemetry_frames (session_id, timestamp, speed, rpm, gear, g_force_x, g_force_y, fuel)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// InsertFrame appends one telemetry frame to a session.
func (s *Store) InsertFrame(ctx context.Context, sessionID int64, sample *telemetry.Sample) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertFrameSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	data := toFrameData(sessionID, sample)
	if _, err = stmt.ExecContext(
		ctx,
		data.SessionID,
		data.Timestamp,
		data.Speed,
		data.RPM,
		data.Gear,
		data.GForceX,
		data.GForceY,
		data.Fuel,
	); err != nil {
		return fmt.Errorf("inserting frame: %w", err)
	}
	return nil
}

const selectSessionSQL = `
SELECT
    id,
    subject_id,
    start_time,
    end_time
FROM sessions
WHERE
    id = ?`

// ErrSessionNotFound is returned when a session ID does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Session returns a session by its ID.
func (s *Store) Session(ctx context.Context, id int64) (session *SessionRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	var rec SessionRecord
	var endTime sql.NullTime
	err = db.QueryRowContext(ctx, selectSessionSQL, id).Scan(&rec.ID, &rec.SubjectID, &rec.StartTime, &endTime)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrSessionNotFound
	case err != nil:
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	if endTime.Valid {
		rec.EndTime = &endTime.Time
	}
	return &rec, nil
}

const selectSessionsSQL = `
SELECT
    id,
    subject_id,
    start_time,
    end_time
FROM sessions
WHERE
    subject_id = ?
ORDER BY start_time DESC
LIMIT ? OFFSET ?`

// Sessions returns the subject's sessions, most recent first.
func (s *Store) Sessions(ctx context.Context, subjectID int64, limit, offset int) (sessions []*SessionRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL, subjectID, limit, offset)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var rec SessionRecord
		var endTime sql.NullTime
		if err = rows.Scan(&rec.ID, &rec.SubjectID, &rec.StartTime, &endTime); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		if endTime.Valid {
			rec.EndTime = &endTime.Time
		}
		sessions = append(sessions, &rec)
	}
	err = rows.Err()
	return
}

const selectFramesSQL = `
SELECT
    id,
    session_id,
    timestamp,
    speed,
    rpm,
    gear,
    g_force_x,
    g_force_y,
    fuel
FROM telemetry_frames
WHERE
    session_id = ?
ORDER BY timestamp ASC`

// SessionFrames returns all frames of a session in timestamp order.
// The 1 Hz frame admission throttle keeps result sets bounded.
func (s *Store) SessionFrames(ctx context.Context, sessionID int64) (frames []*FrameRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectFramesSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying frames: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var rec FrameRecord
		var speed, gx, gy, fuel sql.NullFloat64
		var rpm, gear sql.NullInt64
		if err = rows.Scan(&rec.ID, &rec.SessionID, &rec.Timestamp, &speed, &rpm, &gear, &gx, &gy, &fuel); err != nil {
			err = fmt.Errorf("scanning frame: %w", err)
			return
		}

		rec.Speed = floatPtr(speed)
		rec.RPM = intPtr(rpm)
		rec.Gear = intPtr(gear)
		rec.GForceX = floatPtr(gx)
		rec.GForceY = floatPtr(gy)
		rec.Fuel = floatPtr(fuel)
		frames = append(frames, &rec)
	}
	err = rows.Err()
	return
}

// Close releases both database connections. It is safe to call more
// than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			s.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			s.closeErr = writeErr
		case readErr != nil:
			s.closeErr = readErr
		}
	})

	return s.closeErr
}
