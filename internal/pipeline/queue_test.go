package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/guven8/beamng-telemetry-platform/internal/telemetry"
)

func sampleWithSpeed(speed float64) *telemetry.Sample {
	return &telemetry.Sample{Speed: &speed, CapturedAt: time.Now().UTC()}
}

func TestQueue_FanOutToIndependentSubscriptions(t *testing.T) {
	q := NewQueue()
	a := q.Subscribe("broadcast")
	b := q.Subscribe("persistence")

	first := sampleWithSpeed(1.5)
	second := sampleWithSpeed(2.5)
	q.Publish(first)
	q.Publish(second)

	ctx := context.Background()
	for _, sub := range []*Subscription{a, b} {
		got, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("%s: Next() error: %v", sub.Name(), err)
		}
		if got != first {
			t.Errorf("%s: expected first sample, got %+v", sub.Name(), got)
		}

		got, err = sub.Next(ctx)
		if err != nil {
			t.Fatalf("%s: Next() error: %v", sub.Name(), err)
		}
		if got != second {
			t.Errorf("%s: expected second sample in order, got %+v", sub.Name(), got)
		}
	}
}

func TestQueue_DropsWhenSubscriptionFull(t *testing.T) {
	q := NewQueue(WithBufferSize(2))
	slow := q.Subscribe("slow")

	for i := 0; i < 5; i++ {
		q.Publish(sampleWithSpeed(float64(i)))
	}

	if got := slow.Dropped(); got != 3 {
		t.Errorf("expected 3 drops on full buffer, got %d", got)
	}
	if got := q.Dropped(); got != 3 {
		t.Errorf("expected queue-wide drop count 3, got %d", got)
	}
	if got := q.Depth(); got != 2 {
		t.Errorf("expected depth 2, got %d", got)
	}

	// The retained samples are the oldest two, in order.
	ctx := context.Background()
	for want := 0.0; want < 2; want++ {
		sample, err := slow.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		if *sample.Speed != want {
			t.Errorf("expected speed %.0f, got %.0f", want, *sample.Speed)
		}
	}
}

func TestQueue_SlowConsumerDoesNotStarveTheOther(t *testing.T) {
	q := NewQueue(WithBufferSize(1))
	stalled := q.Subscribe("stalled")
	healthy := q.Subscribe("healthy")

	q.Publish(sampleWithSpeed(1))
	q.Publish(sampleWithSpeed(2)) // stalled drops this one

	if stalled.Dropped() != 1 {
		t.Fatalf("expected stalled subscription to drop 1, got %d", stalled.Dropped())
	}

	ctx := context.Background()
	for want := 1.0; want <= 2; want++ {
		sample, err := healthy.Next(ctx)
		if err != nil {
			t.Fatalf("healthy Next() error: %v", err)
		}
		if *sample.Speed != want {
			t.Errorf("healthy: expected speed %.0f, got %.0f", want, *sample.Speed)
		}
	}
}

func TestSubscription_NextTimeout(t *testing.T) {
	q := NewQueue()
	sub := q.Subscribe("idle", WithPollInterval(10*time.Millisecond))

	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout on empty queue, got %v", err)
	}
}

func TestSubscription_NextObservesCancellation(t *testing.T) {
	q := NewQueue()
	sub := q.Subscribe("cancelled")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sub.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
