// Package ingest receives OutGauge datagrams from the UDP socket and
// feeds decoded samples into the pipeline.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/guven8/beamng-telemetry-platform/internal/outgauge"
	"github.com/guven8/beamng-telemetry-platform/internal/pipeline"
)

// DefaultPort is the standard OutGauge UDP port.
const DefaultPort = 4444

// Log aggregate counters every logEvery received packets rather than
// per packet, so sustained malformed traffic cannot flood the log.
const logEvery = 1000

// Receiver owns the ingest socket. It decodes every datagram and
// publishes successful decodes to the queue without ever blocking on a
// full buffer.
type Receiver struct {
	port   int
	queue  *pipeline.Queue
	logger *slog.Logger

	received atomic.Uint64
	rejected atomic.Uint64
	dropped  atomic.Uint64
}

// WithPort overrides the UDP port to bind.
func WithPort(port int) func(*Receiver) {
	return func(r *Receiver) {
		if port > 0 {
			r.port = port
		}
	}
}

// NewReceiver creates a receiver publishing to the given queue.
func NewReceiver(queue *pipeline.Queue, logger *slog.Logger, options ...func(*Receiver)) *Receiver {
	r := Receiver{
		port:   DefaultPort,
		queue:  queue,
		logger: logger,
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Port returns the configured ingest port.
func (r *Receiver) Port() int { return r.port }

// Received returns the total number of datagrams received.
func (r *Receiver) Received() uint64 { return r.received.Load() }

// Rejected returns the total number of datagrams the decoder rejected.
func (r *Receiver) Rejected() uint64 { return r.rejected.Load() }

// Dropped returns the total number of samples dropped on a full queue.
func (r *Receiver) Dropped() uint64 { return r.dropped.Load() }

// Run binds the socket on all interfaces and receives until the
// context is cancelled. Only a bind failure returns an error; decode
// rejections and queue drops are absorbed and counted.
func (r *Receiver) Run(ctx context.Context) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: r.port})
	if err != nil {
		return fmt.Errorf("binding UDP socket on port %d: %w", r.port, err)
	}

	// Closing the socket unblocks ReadFromUDP when the context ends.
	closed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-closed:
		}
	}()
	defer close(closed)
	defer conn.Close()

	r.logger.Info("UDP receiver listening", slog.Int("port", r.port))

	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				r.logger.Info("UDP receiver stopped",
					slog.String("received", humanize.Comma(int64(r.received.Load()))),
					slog.String("rejected", humanize.Comma(int64(r.rejected.Load()))),
					slog.String("dropped", humanize.Comma(int64(r.dropped.Load()))))
				return nil
			}

			r.logger.Warn(fmt.Sprintf("UDP read error: %s", err.Error()))
			continue
		}

		received := r.received.Add(1)

		data := make([]byte, n)
		copy(data, buf[:n])

		sample, err := outgauge.Decode(data)
		if err != nil {
			r.rejected.Add(1)
			continue
		}

		if full := r.queue.Publish(sample); full > 0 {
			r.dropped.Add(uint64(full))
		}

		if received%logEvery == 0 {
			r.logger.Info("ingest counters",
				slog.String("received", humanize.Comma(int64(received))),
				slog.String("rejected", humanize.Comma(int64(r.rejected.Load()))),
				slog.String("dropped", humanize.Comma(int64(r.dropped.Load()))),
				slog.Int("queueDepth", r.queue.Depth()))
		}
	}
}
