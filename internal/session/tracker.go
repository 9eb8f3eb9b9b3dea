// Package session turns a stream of telemetry samples into discrete
// driving sessions based on movement and inactivity.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/guven8/beamng-telemetry-platform/internal/telemetry"
)

const (
	// MovementThreshold is the speed in m/s above which the vehicle
	// counts as moving.
	MovementThreshold = 0.5

	// InactivityTimeout closes a session after this long without
	// movement.
	InactivityTimeout = 30 * time.Second

	// FrameSaveInterval is the minimum spacing between persisted
	// frames, independent of the incoming sample rate.
	FrameSaveInterval = time.Second
)

// Store is the persistence boundary for session open/close events.
// Implementations may fail (storage unavailable); the tracker keeps
// its in-memory state moving regardless.
type Store interface {
	CreateSession(ctx context.Context, subjectID int64, startTime time.Time) (int64, error)
	CloseSession(ctx context.Context, sessionID int64, endTime time.Time) error
}

// WithClock overrides the tracker's time source.
func WithClock(now func() time.Time) func(*Tracker) {
	return func(t *Tracker) {
		t.now = now
	}
}

// Tracker is a per-subject state machine over Idle and Active. It is
// owned by a single consumer task and is not safe for concurrent use.
type Tracker struct {
	store     Store
	logger    *slog.Logger
	subjectID int64
	now       func() time.Time

	active       bool
	sessionID    int64
	sessionStart time.Time
	lastActivity time.Time
	lastSave     time.Time
}

// NewTracker creates a tracker for one subject.
func NewTracker(store Store, subjectID int64, logger *slog.Logger, options ...func(*Tracker)) *Tracker {
	t := Tracker{
		store:     store,
		logger:    logger,
		subjectID: subjectID,
		now:       time.Now,
	}

	for _, option := range options {
		option(&t)
	}

	return &t
}

// Active reports whether a session is currently open.
func (t *Tracker) Active() bool { return t.active }

// SessionID returns the storage ID of the open session, or zero when
// idle or when the open could not be persisted.
func (t *Tracker) SessionID() int64 { return t.sessionID }

// Process routes one sample through the state machine and returns the
// session the sample belongs to, if any. A moving sample opens a
// session when none is active; prolonged inactivity closes the open
// one. Sessions never reopen: after a close, the next moving sample
// starts a fresh session.
func (t *Tracker) Process(ctx context.Context, sample *telemetry.Sample) (sessionID int64, active bool) {
	now := t.now().UTC()
	moving := sample.Moving(MovementThreshold)

	if moving && !t.active {
		t.open(ctx, now)
	}
	if moving {
		t.lastActivity = now
	}

	if t.active && now.Sub(t.lastActivity) > InactivityTimeout {
		t.close(ctx, now)
	}

	return t.sessionID, t.active
}

// CheckInactivity closes the open session when the inactivity timeout
// has passed. Consumers call it on queue-read timeouts so sessions end
// even when no samples arrive at all.
func (t *Tracker) CheckInactivity(ctx context.Context) {
	if !t.active {
		return
	}

	now := t.now().UTC()
	if now.Sub(t.lastActivity) > InactivityTimeout {
		t.close(ctx, now)
	}
}

// ShouldSaveFrame reports whether a frame written now respects the
// minimum save spacing.
func (t *Tracker) ShouldSaveFrame(now time.Time) bool {
	if t.lastSave.IsZero() {
		return true
	}
	return now.Sub(t.lastSave) >= FrameSaveInterval
}

// MarkSaved records a frame write for save-interval accounting.
func (t *Tracker) MarkSaved(now time.Time) {
	t.lastSave = now
}

// Now returns the tracker's current time. Consumers use it so frame
// admission and inactivity arithmetic share one clock.
func (t *Tracker) Now() time.Time { return t.now().UTC() }

// Shutdown closes the open session, if any, at the current time.
func (t *Tracker) Shutdown(ctx context.Context) {
	if t.active {
		t.close(ctx, t.now().UTC())
	}
}

func (t *Tracker) open(ctx context.Context, start time.Time) {
	id, err := t.store.CreateSession(ctx, t.subjectID, start)
	if err != nil {
		// Favor liveness: track the session in memory even when the
		// store is unavailable. Its frames will be lost.
		t.logger.Error(fmt.Sprintf("creating session: %s", err.Error()), slog.Int64("subjectID", t.subjectID))
		id = 0
	}

	t.active = true
	t.sessionID = id
	t.sessionStart = start
	t.lastActivity = start
	t.lastSave = start

	t.logger.Info("session started",
		slog.Int64("sessionID", id),
		slog.Int64("subjectID", t.subjectID),
		slog.Time("start", start))
}

func (t *Tracker) close(ctx context.Context, end time.Time) {
	if t.sessionID != 0 {
		if err := t.store.CloseSession(ctx, t.sessionID, end); err != nil {
			t.logger.Error(fmt.Sprintf("closing session: %s", err.Error()), slog.Int64("sessionID", t.sessionID))
		}
	}

	t.logger.Info("session ended",
		slog.Int64("sessionID", t.sessionID),
		slog.Duration("duration", end.Sub(t.sessionStart)))

	t.active = false
	t.sessionID = 0
	t.sessionStart = time.Time{}
	t.lastActivity = time.Time{}
	t.lastSave = time.Time{}
}
