// Package web provides the HTTP status server and operator endpoints for
// the tide display daemon.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/sweeney/tide-display/internal/level"
	"github.com/sweeney/tide-display/internal/status"
)

// CommandTimeout bounds how long a handler waits for the control loop.
const CommandTimeout = 5 * time.Second

// Server serves the status page, JSON endpoints, the live feed and
// operator commands over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	hub        *Hub
	commands   chan<- Command
}

// New creates a Server that reads state from the given tracker and sends
// operator commands on commands.
func New(addr string, tracker *status.Tracker, hub *Hub, commands chan<- Command) *Server {
	s := &Server{tracker: tracker, hub: hub, commands: commands}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/tide", s.handleTide).Methods(http.MethodGet)
	api.HandleFunc("/level", s.handleLevel).Methods(http.MethodGet)
	api.HandleFunc("/level", s.handleSetLevel).Methods(http.MethodPost)
	api.HandleFunc("/mode", s.handleSetMode).Methods(http.MethodPost)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handlers.LoggingHandler(log.Writer(), r),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleTide(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, status.Build(s.tracker.Snapshot()).Clock)
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, status.Build(s.tracker.Snapshot()).Level)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.serveWS(w, r, status.FormatJSON(s.tracker.Snapshot()))
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type levelRequest struct {
	Level *float64 `json:"level"`
}

type commandResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{Error: fmt.Sprintf("bad request: %v", err)})
		return
	}
	mode := status.Mode(req.Mode)
	if mode != status.ModeRun && mode != status.ModeTest {
		writeJSON(w, http.StatusBadRequest, commandResponse{Error: fmt.Sprintf("unknown mode %q", req.Mode)})
		return
	}

	cmd := newCommand(CommandMode)
	cmd.Mode = mode
	s.dispatch(w, r, cmd)
}

func (s *Server) handleSetLevel(w http.ResponseWriter, r *http.Request) {
	var req levelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{Error: fmt.Sprintf("bad request: %v", err)})
		return
	}
	if req.Level == nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{Error: "missing level"})
		return
	}

	cmd := newCommand(CommandLevel)
	cmd.Level = *req.Level
	s.dispatch(w, r, cmd)
}

// dispatch hands cmd to the control loop and reports its result.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, cmd Command) {
	ctx, cancel := context.WithTimeout(r.Context(), CommandTimeout)
	defer cancel()

	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		writeJSON(w, http.StatusServiceUnavailable, commandResponse{Error: "control loop busy"})
		return
	}

	select {
	case err := <-cmd.Reply:
		if err != nil {
			writeJSON(w, commandStatus(err), commandResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, commandResponse{OK: true})
	case <-ctx.Done():
		writeJSON(w, http.StatusServiceUnavailable, commandResponse{Error: "control loop busy"})
	}
}

func commandStatus(err error) int {
	switch {
	case errors.Is(err, level.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, level.ErrNotReady), errors.Is(err, ErrTestModeOnly):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
