package stream

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/guven8/beamng-telemetry-platform/internal/telemetry"
)

type fakeSender struct {
	messages []Message
	err      error
}

func (f *fakeSender) Send(m Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, m)
	return nil
}

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHub_PublishToRegisteredSenders(t *testing.T) {
	hub := newTestHub()
	a := &fakeSender{}
	b := &fakeSender{}
	other := &fakeSender{}

	hub.Register(1, a)
	hub.Register(1, b)
	hub.Register(2, other)

	hub.Publish(1, Message{})

	if len(a.messages) != 1 || len(b.messages) != 1 {
		t.Errorf("expected both subject-1 senders to receive, got %d and %d", len(a.messages), len(b.messages))
	}
	if len(other.messages) != 0 {
		t.Errorf("expected subject-2 sender untouched, got %d messages", len(other.messages))
	}
}

func TestHub_PublishWithoutSendersIsNoOp(t *testing.T) {
	hub := newTestHub()
	hub.Publish(42, Message{}) // must not panic or register anything
	if hub.TotalCount() != 0 {
		t.Errorf("expected empty registry, got %d", hub.TotalCount())
	}
}

func TestHub_BrokenSenderPrunedOnPublish(t *testing.T) {
	hub := newTestHub()
	healthy := &fakeSender{}
	broken := &fakeSender{err: errors.New("connection reset")}

	hub.Register(1, healthy)
	hub.Register(1, broken)

	hub.Publish(1, Message{})

	if hub.Count(1) != 1 {
		t.Fatalf("expected broken sender pruned, registry has %d", hub.Count(1))
	}
	if len(healthy.messages) != 1 {
		t.Errorf("expected healthy sender unaffected, got %d messages", len(healthy.messages))
	}

	// The broken sender is gone immediately, not on a later sweep.
	hub.Publish(1, Message{})
	if len(healthy.messages) != 2 {
		t.Errorf("expected second publish delivered, got %d messages", len(healthy.messages))
	}
}

func TestHub_RegisterUnregisterIdempotent(t *testing.T) {
	hub := newTestHub()
	s := &fakeSender{}

	hub.Register(1, s)
	hub.Register(1, s)
	if hub.Count(1) != 1 {
		t.Errorf("expected duplicate register collapsed, got %d", hub.Count(1))
	}

	hub.Unregister(1, s)
	hub.Unregister(1, s)
	if hub.TotalCount() != 0 {
		t.Errorf("expected subject entry removed with its last sender, got %d", hub.TotalCount())
	}
}

func TestNewMessage(t *testing.T) {
	speed := 12.5
	rpm := 3000
	gear := 2
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	m := NewMessage(&telemetry.Sample{Speed: &speed, RPM: &rpm, Gear: &gear, CapturedAt: at})
	if m.Speed == nil || *m.Speed != speed {
		t.Errorf("expected speed %v, got %v", speed, m.Speed)
	}
	if m.Timestamp == nil || *m.Timestamp != "2026-03-14T12:00:00Z" {
		t.Errorf("expected RFC 3339 timestamp, got %v", m.Timestamp)
	}
	if m.GForceX != nil || m.GForceY != nil {
		t.Error("expected nil g-force fields for OutGauge samples")
	}

	empty := NewMessage(&telemetry.Sample{})
	if empty.Timestamp != nil {
		t.Errorf("expected nil timestamp for zero capture time, got %v", *empty.Timestamp)
	}
}
