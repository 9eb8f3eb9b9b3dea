// Package pipeline provides the bounded hand-off between the packet
// receiver and its downstream consumers. Each consumer holds its own
// subscription with its own buffer, so a slow broadcast path cannot
// starve the durable writer and vice versa.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guven8/beamng-telemetry-platform/internal/telemetry"
)

const (
	// DefaultBufferSize absorbs short bursts without unbounded growth.
	DefaultBufferSize = 128

	// DefaultPollInterval bounds how long a consumer blocks in Next
	// before it gets control back to run periodic checks.
	DefaultPollInterval = time.Second
)

// ErrTimeout is returned by Subscription.Next when no sample arrived
// within the poll interval. It is the consumer's cue to run its
// periodic work (inactivity checks, cancellation observation).
var ErrTimeout = errors.New("queue read timed out")

// Queue fans published samples out to every subscription. Publishing
// never blocks: a subscription whose buffer is full drops the sample
// and counts the drop.
type Queue struct {
	bufferSize int

	mu   sync.Mutex
	subs []*Subscription

	published atomic.Uint64
	dropped   atomic.Uint64
}

// WithBufferSize sets the per-subscription buffer capacity.
func WithBufferSize(n int) func(*Queue) {
	return func(q *Queue) {
		if n > 0 {
			q.bufferSize = n
		}
	}
}

// NewQueue creates an empty queue.
func NewQueue(options ...func(*Queue)) *Queue {
	q := Queue{bufferSize: DefaultBufferSize}
	for _, option := range options {
		option(&q)
	}
	return &q
}

// WithPollInterval sets how long Next blocks before returning
// ErrTimeout.
func WithPollInterval(d time.Duration) func(*Subscription) {
	return func(s *Subscription) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Subscribe registers a new named consumer and returns its
// subscription. The name only appears in diagnostics.
func (q *Queue) Subscribe(name string, options ...func(*Subscription)) *Subscription {
	sub := &Subscription{
		name:     name,
		ch:       make(chan *telemetry.Sample, q.bufferSize),
		interval: DefaultPollInterval,
	}

	for _, option := range options {
		option(sub)
	}

	q.mu.Lock()
	q.subs = append(q.subs, sub)
	q.mu.Unlock()

	return sub
}

// Publish delivers the sample to every subscription without blocking.
// It returns the number of subscriptions that dropped the sample.
func (q *Queue) Publish(sample *telemetry.Sample) int {
	q.mu.Lock()
	subs := make([]*Subscription, len(q.subs))
	copy(subs, q.subs)
	q.mu.Unlock()

	q.published.Add(1)

	var full int
	for _, sub := range subs {
		select {
		case sub.ch <- sample:
		default:
			sub.dropped.Add(1)
			q.dropped.Add(1)
			full++
		}
	}
	return full
}

// Depth returns the largest backlog across all subscriptions.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var depth int
	for _, sub := range q.subs {
		if n := len(sub.ch); n > depth {
			depth = n
		}
	}
	return depth
}

// Published returns the total number of samples published.
func (q *Queue) Published() uint64 { return q.published.Load() }

// Dropped returns the total number of per-subscription drops.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Subscription is one consumer's private cursor over the published
// stream.
type Subscription struct {
	name     string
	ch       chan *telemetry.Sample
	interval time.Duration

	dropped atomic.Uint64
}

// Name returns the consumer name given at Subscribe time.
func (s *Subscription) Name() string { return s.name }

// Dropped returns how many samples this subscription has dropped.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Next blocks until a sample arrives, the poll interval elapses
// (ErrTimeout), or the context is cancelled (the context error).
func (s *Subscription) Next(ctx context.Context) (*telemetry.Sample, error) {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	select {
	case sample := <-s.ch:
		return sample, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
