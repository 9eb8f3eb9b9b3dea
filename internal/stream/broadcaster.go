package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/guven8/beamng-telemetry-platform/internal/pipeline"
)

const logEvery = 1000

// Broadcaster is the consumer task feeding the hub from its own queue
// subscription.
type Broadcaster struct {
	sub       *pipeline.Subscription
	hub       *Hub
	subjectID int64
	logger    *slog.Logger

	published atomic.Uint64
}

// NewBroadcaster creates the broadcast consumer for one subject.
func NewBroadcaster(sub *pipeline.Subscription, hub *Hub, subjectID int64, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		sub:       sub,
		hub:       hub,
		subjectID: subjectID,
		logger:    logger,
	}
}

// Published returns the total number of samples broadcast.
func (b *Broadcaster) Published() uint64 { return b.published.Load() }

// Run consumes samples until the context is cancelled. Queue timeouts
// only serve as cancellation checkpoints here; the hub needs no
// periodic maintenance because broken clients are pruned on publish.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.logger.Info("broadcast consumer started", slog.Int64("subjectID", b.subjectID))

	for {
		sample, err := b.sub.Next(ctx)
		switch {
		case errors.Is(err, pipeline.ErrTimeout):
			continue
		case err != nil:
			b.logger.Info("broadcast consumer stopped", slog.Uint64("published", b.published.Load()))
			return nil
		}

		b.hub.Publish(b.subjectID, NewMessage(sample))

		if n := b.published.Add(1); n%logEvery == 0 {
			b.logger.Info("broadcast counters",
				slog.Uint64("published", n),
				slog.Int("connections", b.hub.Count(b.subjectID)))
		}
	}
}
