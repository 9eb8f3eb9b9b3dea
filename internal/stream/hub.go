// Package stream fans live telemetry out to registered client
// channels, keyed by subject.
package stream

import (
	"fmt"
	"log/slog"
	"sync"
)

// Sender is one live output channel. Send either delivers the message
// or returns an error, in which case the hub drops the sender from the
// registry.
type Sender interface {
	Send(Message) error
}

// Hub is the connection registry shared between the broadcast worker
// and the connect/disconnect paths. Construct one per process and pass
// it by reference; tests get isolated instances.
type Hub struct {
	logger *slog.Logger

	mu    sync.Mutex
	conns map[int64]map[Sender]struct{}
}

// NewHub creates an empty registry.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		conns:  make(map[int64]map[Sender]struct{}),
	}
}

// Register adds a sender for the subject. Registering the same sender
// twice is a no-op.
func (h *Hub) Register(subjectID int64, s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[subjectID]
	if !ok {
		set = make(map[Sender]struct{})
		h.conns[subjectID] = set
	}
	set[s] = struct{}{}

	h.logger.Info("stream client connected",
		slog.Int64("subjectID", subjectID),
		slog.Int("connections", len(set)))
}

// Unregister removes a sender for the subject. Removing the last
// sender drops the subject's entry entirely. Unknown senders are
// ignored.
func (h *Hub) Unregister(subjectID int64, s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(subjectID, s)
}

func (h *Hub) removeLocked(subjectID int64, s Sender) {
	set, ok := h.conns[subjectID]
	if !ok {
		return
	}
	if _, ok = set[s]; !ok {
		return
	}

	delete(set, s)
	if len(set) == 0 {
		delete(h.conns, subjectID)
	}

	h.logger.Info("stream client disconnected",
		slog.Int64("subjectID", subjectID),
		slog.Int("connections", len(set)))
}

// Publish sends the message to every sender registered for the
// subject. The member list is copied out under the lock and the sends
// happen outside it, so a slow client never blocks registry mutation.
// Senders that fail are removed before Publish returns. Publishing to
// a subject with no senders is a silent no-op.
func (h *Hub) Publish(subjectID int64, m Message) {
	h.mu.Lock()
	set, ok := h.conns[subjectID]
	if !ok {
		h.mu.Unlock()
		return
	}
	targets := make([]Sender, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	var broken []Sender
	for _, s := range targets {
		if err := s.Send(m); err != nil {
			h.logger.Warn(fmt.Sprintf("dropping broken stream client: %s", err.Error()),
				slog.Int64("subjectID", subjectID))
			broken = append(broken, s)
		}
	}

	if len(broken) > 0 {
		h.mu.Lock()
		for _, s := range broken {
			h.removeLocked(subjectID, s)
		}
		h.mu.Unlock()
	}
}

// Count returns the number of senders registered for the subject.
func (h *Hub) Count(subjectID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[subjectID])
}

// TotalCount returns the number of senders across all subjects.
func (h *Hub) TotalCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	var n int
	for _, set := range h.conns {
		n += len(set)
	}
	return n
}
