// Package server exposes a sshcored daemon's control-plane surface: a
// genuine ConnectRPC-served grpchealth.v1 health check plus a
// JSON-over-net/http session-management API covering the Registry's
// ListSessions/GetSession/WatchSessionEvents/CloseSession surface. It is
// served as JSON rather than a second generated Connect service, since
// that would need protoc-generated message types this repo cannot produce
// without invoking the Go/protoc toolchain (see DESIGN.md).
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"connectrpc.com/grpchealth"
)

// HealthServiceName is reported by the grpchealth checker as the overall
// control-plane service name, alongside grpchealth.HealthV1ServiceName.
const HealthServiceName = "sshcore.transport.v1.TransportService"

// Server serves the control-plane HTTP mux: health checks plus session
// management, backed by a Registry of live transport.Session instances.
type Server struct {
	registry *Registry
	logger   *slog.Logger
}

// New creates a Server backed by reg.
func New(reg *Registry, logger *slog.Logger) *Server {
	return &Server{
		registry: reg,
		logger:   logger.With(slog.String("component", "server")),
	}
}

// Handler returns the complete control-plane http.Handler: the grpchealth
// endpoint (wrapped with the Connect logging/recovery interceptor pair)
// plus the JSON session-management endpoints (wrapped with the plain-HTTP
// equivalent of that same pair).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/sessions", s.handleList)
	mux.HandleFunc("GET /v1/sessions/watch", s.handleWatch)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGet)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleClose)

	checker := grpchealth.NewStaticChecker(
		grpchealth.HealthV1ServiceName,
		HealthServiceName,
	)
	mux.Handle(grpchealth.NewHandler(checker, Interceptors(s.logger)))

	return httpLogRecover(s.logger, mux)
}

// -------------------------------------------------------------------------
// Session-management handlers
// -------------------------------------------------------------------------

// handleList serves GET /v1/sessions: every tracked session.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

// handleGet serves GET /v1/sessions/{id}: one session by registry ID.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, ok := s.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, ErrSessionNotFound)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// handleClose serves DELETE /v1/sessions/{id}: tears the session down via
// its registered closer and stops tracking it.
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.registry.Close(id); err != nil {
		writeError(w, mapCloseError(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleWatch serves GET /v1/sessions/watch: a newline-delimited JSON
// stream of Events for as long as the client keeps the connection open.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("server: response does not support streaming"))
		return
	}

	ch, cancel := s.registry.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	if includeCurrent(r) {
		for _, snap := range s.registry.List() {
			if err := writeNDJSON(w, Event{Type: EventSessionAdded, SessionID: snap.ID, Session: snap}); err != nil {
				return
			}
		}
		flusher.Flush()
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeNDJSON(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// includeCurrent reports whether the client asked to receive SESSION_ADDED
// events for already-tracked sessions before streaming live events.
func includeCurrent(r *http.Request) bool {
	v := r.URL.Query().Get("include_current")
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// mapCloseError maps a Registry.Close error to an HTTP status.
func mapCloseError(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// -------------------------------------------------------------------------
// JSON helpers
// -------------------------------------------------------------------------

func parseSessionID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("server: invalid session id %q: %w", raw, err)
	}
	return id, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeNDJSON(w http.ResponseWriter, v any) error {
	return json.NewEncoder(w).Encode(v)
}
