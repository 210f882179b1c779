// Package ingest exposes the lifecycle callbacks over HTTP.
//
// DESIGN: Frameworks that cannot link Go code post their callback events
// here. Routes:
//   - POST /v1/events: feed one lifecycle event to the callback
//   - GET  /health:    liveness
//   - GET  /stats:     metrics snapshot
//
// Events are handled synchronously so a run's start is always recorded
// before its end from the same client is processed.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/compresr/llm-alerts/internal/config"
	"github.com/compresr/llm-alerts/internal/lifecycle"
	"github.com/compresr/llm-alerts/internal/monitoring"
)

// Server is the event ingest HTTP server.
type Server struct {
	callback lifecycle.Callback
	metrics  *monitoring.MetricsCollector
	logger   *monitoring.Logger
	server   *http.Server
}

// New creates a Server that forwards events to callback.
func New(cfg config.ServerConfig, callback lifecycle.Callback, logger *monitoring.Logger, metrics *monitoring.MetricsCollector) *Server {
	if logger == nil {
		logger = monitoring.Nop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetricsCollector()
	}

	s := &Server{
		callback: callback,
		metrics:  metrics,
		logger:   logger.With("component", "ingest"),
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", s.handleEvent)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)

	return s.panicRecovery(s.loggingMiddleware(mux))
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("event ingest listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	var ev Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		s.writeError(w, "invalid event body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !ev.Event.Valid() {
		s.writeError(w, fmt.Sprintf("unknown event type %q", ev.Event), http.StatusBadRequest)
		return
	}

	if ev.RunID == "" {
		if ev.Event != EventInvocationStart {
			s.writeError(w, "run_id is required", http.StatusBadRequest)
			return
		}
		ev.RunID = uuid.New().String()
	}

	var evErr error
	if ev.Error != "" {
		evErr = errors.New(ev.Error)
	}

	// Alert delivery must not be cut short by the client going away.
	ctx := context.WithoutCancel(r.Context())
	switch ev.Event {
	case EventInvocationStart:
		s.callback.OnInvocationStart(ctx, ev.Metadata, ev.RunID)
	case EventInvocationEnd:
		s.callback.OnInvocationEnd(ctx, []byte(ev.Response), ev.RunID)
	case EventInvocationError:
		s.callback.OnInvocationError(ctx, evErr, ev.RunID)
	case EventPipelineError:
		s.callback.OnPipelineError(ctx, evErr, ev.RunID)
	}

	s.writeJSON(w, http.StatusAccepted, Accepted{RunID: ev.RunID})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.metrics.Stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, msg string, status int) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
