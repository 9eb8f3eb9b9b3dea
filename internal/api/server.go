// Package api exposes the read-only HTTP surface: session history,
// operational diagnostics, and the live telemetry websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/guven8/beamng-telemetry-platform/internal/analytics"
	"github.com/guven8/beamng-telemetry-platform/internal/ingest"
	"github.com/guven8/beamng-telemetry-platform/internal/pipeline"
	"github.com/guven8/beamng-telemetry-platform/internal/storage"
	"github.com/guven8/beamng-telemetry-platform/internal/stream"
)

const (
	defaultSessionsLimit = 100
	maxSessionsLimit     = 500
)

// Server wires the HTTP routes to the running pipeline and the store.
type Server struct {
	store     *storage.Store
	hub       *stream.Hub
	queue     *pipeline.Queue
	receiver  *ingest.Receiver
	subjectID int64
	logger    *slog.Logger

	router   *mux.Router
	upgrader websocket.Upgrader
}

// NewServer creates the API server for one subject.
func NewServer(store *storage.Store, hub *stream.Hub, queue *pipeline.Queue, receiver *ingest.Receiver, subjectID int64, logger *slog.Logger) *Server {
	s := &Server{
		store:     store,
		hub:       hub,
		queue:     queue,
		receiver:  receiver,
		subjectID: subjectID,
		logger:    logger,
		router:    mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from arbitrary local origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

// Router returns the configured HTTP handler.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/v1/sessions", s.handleListSessions).Methods("GET")
	s.router.HandleFunc("/api/v1/sessions/{id:[0-9]+}", s.handleGetSession).Methods("GET")
	s.router.HandleFunc("/api/v1/stats", s.handleStats).Methods("GET")

	s.router.HandleFunc("/ws/telemetry", s.handleTelemetrySocket)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response: " + err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "beamng-telemetry-platform",
	})
}

// sessionResponse is a session row enriched with its frame count and
// analytics.
type sessionResponse struct {
	storage.SessionRecord
	FrameCount int `json:"frame_count"`
	analytics.Summary
}

type sessionDetailResponse struct {
	sessionResponse
	Frames []*storage.FrameRecord `json:"frames"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultSessionsLimit)
	if limit < 1 || limit > maxSessionsLimit {
		limit = defaultSessionsLimit
	}
	offset := max(queryInt(r, "offset", 0), 0)

	sessions, err := s.store.Sessions(r.Context(), s.subjectID, limit, offset)
	if err != nil {
		s.logger.Error("listing sessions: " + err.Error())
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve sessions")
		return
	}

	result := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		frames, err := s.store.SessionFrames(r.Context(), sess.ID)
		if err != nil {
			s.logger.Error("loading session frames: " + err.Error())
			s.writeError(w, http.StatusInternalServerError, "failed to retrieve sessions")
			return
		}
		result = append(result, sessionResponse{
			SessionRecord: *sess,
			FrameCount:    len(frames),
			Summary:       analytics.Summarize(sess, frames),
		})
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	sess, err := s.store.Session(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	case err != nil:
		s.logger.Error("loading session: " + err.Error())
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve session")
		return
	}

	if sess.SubjectID != s.subjectID {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	frames, err := s.store.SessionFrames(r.Context(), id)
	if err != nil {
		s.logger.Error("loading session frames: " + err.Error())
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve session")
		return
	}

	s.writeJSON(w, http.StatusOK, sessionDetailResponse{
		sessionResponse: sessionResponse{
			SessionRecord: *sess,
			FrameCount:    len(frames),
			Summary:       analytics.Summarize(sess, frames),
		},
		Frames: frames,
	})
}

// statsResponse is the read-only diagnostic surface.
type statsResponse struct {
	IngestPort       int    `json:"ingest_port"`
	QueueDepth       int    `json:"queue_depth"`
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsRejected  uint64 `json:"packets_rejected"`
	SamplesDropped   uint64 `json:"samples_dropped"`
	SamplesPublished uint64 `json:"samples_published"`
	LiveConnections  int    `json:"live_connections"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, statsResponse{
		IngestPort:       s.receiver.Port(),
		QueueDepth:       s.queue.Depth(),
		PacketsReceived:  s.receiver.Received(),
		PacketsRejected:  s.receiver.Rejected(),
		SamplesDropped:   s.queue.Dropped(),
		SamplesPublished: s.queue.Published(),
		LiveConnections:  s.hub.TotalCount(),
	})
}

// handleTelemetrySocket upgrades the connection and keeps it
// registered in the hub until the client goes away. The read loop only
// consumes control frames; the data flow is strictly server to client.
func (s *Server) handleTelemetrySocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed: " + err.Error())
		return
	}

	sender := stream.NewWebSocketSender(conn)
	s.hub.Register(s.subjectID, sender)
	defer func() {
		s.hub.Unregister(s.subjectID, sender)
		_ = sender.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ListenAndServe runs the HTTP server until the context is cancelled,
// then shuts it down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
