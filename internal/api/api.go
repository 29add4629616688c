// api.go

// Copyright (C) 2018  Steve Merrony

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.

// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package api serves the pilot's status over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/SMerrony/tellopilot/internal/catalog"
	"github.com/SMerrony/tellopilot/internal/status"
)

// CaptureLister looks up the snapshots of a session.
type CaptureLister interface {
	Captures(session string) ([]catalog.Capture, error)
}

// Server answers GET /health, GET /status and, with a catalog,
// GET /sessions/{id}/captures.
type Server struct {
	log     zerolog.Logger
	board   *status.Board
	catalog CaptureLister
	started time.Time
	router  *mux.Router
}

type healthResponse struct {
	Status   string  `json:"status"`
	Uptime   float64 `json:"uptimeSeconds"`
	Version  uint64  `json:"statusVersion"`
	Armed    bool    `json:"armed"`
	LastSeen string  `json:"lastSeen,omitempty"`
}

type capturesResponse struct {
	Session  string            `json:"session"`
	Captures []catalog.Capture `json:"captures"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds the routes. lister may be nil.
func New(log zerolog.Logger, board *status.Board, lister CaptureLister) *Server {
	s := &Server{
		log:     log.With().Str("component", "api").Logger(),
		board:   board,
		catalog: lister,
		started: time.Now(),
		router:  mux.NewRouter(),
	}
	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	s.router.HandleFunc("/status", s.statusHandler).Methods("GET")
	s.router.HandleFunc("/sessions/{id}/captures", s.capturesHandler).Methods("GET")
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("addr", addr).Msg("Status API listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Uptime:  time.Since(s.started).Seconds(),
		Version: s.board.Version(),
	}
	if snap, ok := s.board.Latest(); ok {
		resp.Armed = snap.Armed
		resp.LastSeen = snap.UpdatedAt.UTC().Format(time.RFC3339)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.board.Latest()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "no status published yet")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) capturesHandler(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		respondError(w, http.StatusNotFound, "catalog disabled")
		return
	}
	id := mux.Vars(r)["id"]
	caps, err := s.catalog.Captures(id)
	if err != nil {
		s.log.Debug().Err(err).Str("session", id).Msg("Captures lookup failed")
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if caps == nil {
		caps = []catalog.Capture{}
	}
	respondJSON(w, http.StatusOK, capturesResponse{Session: id, Captures: caps})
}

func respondJSON(w http.ResponseWriter, httpStatus int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, httpStatus int, msg string) {
	respondJSON(w, httpStatus, errorResponse{Error: msg})
}
