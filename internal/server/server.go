// Package server provides the HTTP server for the Drishti attendance kiosk.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/drishti/internal/app"
	"github.com/ayusman/drishti/internal/identity"
	"github.com/ayusman/drishti/internal/logging"
	"github.com/ayusman/drishti/internal/server/api"
	"github.com/ayusman/drishti/internal/session"
	"github.com/ayusman/drishti/internal/store"
)

// Kiosk is the part of the running application the server exposes.
// *app.App satisfies it.
type Kiosk interface {
	api.Roster
	Subscribe(fn func(app.Event)) (unsubscribe func())
	LatestFrame() ([]byte, uint64)
	State() app.State
	SetEnabled(enabled bool)
	LastResult() (session.Result, bool)
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Kiosk     Kiosk
}

// Server represents the HTTP server for the kiosk dashboard and API.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	events *EventsHandler
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		var roster api.Roster = storeRoster{s.config.Store}
		if s.config.Kiosk != nil {
			roster = s.config.Kiosk
		}
		students := api.NewStudentHandler(s.config.Store, roster)
		s.mux.Handle("/api/students", students)
		s.mux.Handle("/api/students/", students)
		s.mux.Handle("/api/attendance", api.NewAttendanceHandler(s.config.Store))
	}

	if s.config.Kiosk != nil {
		s.events = NewEventsHandler(s.config.Kiosk)
		s.mux.HandleFunc("/api/state", s.handleState)
		s.mux.Handle("/api/events", s.events)
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Kiosk))
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	writeJSON(w, http.StatusOK, response)
}

type stateResponse struct {
	app.State
	Last *session.Result `json:"last,omitempty"`
}

type setStateRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleState handles GET and PUT on /api/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req setStateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil || req.Enabled == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be {\"enabled\": bool}"})
			return
		}
		s.config.Kiosk.SetEnabled(*req.Enabled)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := stateResponse{State: s.config.Kiosk.State()}
	if last, ok := s.config.Kiosk.LastResult(); ok {
		response.Last = &last
	}
	writeJSON(w, http.StatusOK, response)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.L().Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if s.events != nil {
		s.events.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// storeRoster enrolls directly into the store when no kiosk is running.
type storeRoster struct {
	store *store.Store
}

func (r storeRoster) Enroll(label string, emb identity.Embedding) (*store.Student, error) {
	return r.store.Enroll(label, emb)
}

func (r storeRoster) RemoveStudent(id string) error {
	return r.store.Students().Delete(id)
}
