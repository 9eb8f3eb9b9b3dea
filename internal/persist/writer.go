// Package persist is the durable-storage consumer: it attributes
// samples to sessions and writes rate-limited frame snapshots.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/guven8/beamng-telemetry-platform/internal/pipeline"
	"github.com/guven8/beamng-telemetry-platform/internal/session"
	"github.com/guven8/beamng-telemetry-platform/internal/telemetry"
)

// FrameStore is the persistence boundary for admitted frames.
type FrameStore interface {
	InsertFrame(ctx context.Context, sessionID int64, sample *telemetry.Sample) error
}

// Writer consumes samples from its own queue subscription, drives the
// session tracker, and persists one frame per admission.
type Writer struct {
	sub     *pipeline.Subscription
	tracker *session.Tracker
	frames  FrameStore
	logger  *slog.Logger

	saved    atomic.Uint64
	failures atomic.Uint64
}

// NewWriter creates the durable writer. The tracker is owned by this
// writer exclusively; no other task may touch it.
func NewWriter(sub *pipeline.Subscription, tracker *session.Tracker, frames FrameStore, logger *slog.Logger) *Writer {
	return &Writer{
		sub:     sub,
		tracker: tracker,
		frames:  frames,
		logger:  logger,
	}
}

// Saved returns the number of frames written.
func (w *Writer) Saved() uint64 { return w.saved.Load() }

// Failures returns the number of per-sample storage failures absorbed.
func (w *Writer) Failures() uint64 { return w.failures.Load() }

// Run consumes until the context is cancelled. Queue-read timeouts
// double as the tracker's periodic inactivity check, so sessions close
// even when the vehicle sits idle and no samples arrive. A per-sample
// storage failure is logged and skipped, never fatal.
func (w *Writer) Run(ctx context.Context) error {
	w.logger.Info("persistence worker started")

	for {
		sample, err := w.sub.Next(ctx)
		switch {
		case errors.Is(err, pipeline.ErrTimeout):
			w.tracker.CheckInactivity(ctx)
			continue
		case err != nil:
			// Cancellation: close any open session before exiting.
			w.tracker.Shutdown(context.WithoutCancel(ctx))
			w.logger.Info("persistence worker stopped",
				slog.Uint64("framesSaved", w.saved.Load()),
				slog.Uint64("failures", w.failures.Load()))
			return nil
		}

		sessionID, active := w.tracker.Process(ctx, sample)
		if !active {
			continue
		}

		now := w.tracker.Now()
		if !w.tracker.ShouldSaveFrame(now) {
			continue
		}

		// Save-interval accounting advances even when the write fails;
		// the next attempt happens on the next eligible sample rather
		// than hammering unavailable storage.
		w.tracker.MarkSaved(now)

		if err := w.frames.InsertFrame(ctx, sessionID, sample); err != nil {
			w.failures.Add(1)
			w.logger.Error(fmt.Sprintf("saving frame: %s", err.Error()), slog.Int64("sessionID", sessionID))
			continue
		}

		w.saved.Add(1)
	}
}
