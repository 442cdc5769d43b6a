// Package control serves the local HTTP surface of a running session:
// manual wake triggers, playback state updates from the speech output and
// the Prometheus metrics endpoint.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"assistant-ears/listener"
)

const shutdownTimeout = 5 * time.Second

// Session is the part of listener.Interface the server drives.
type Session interface {
	Trigger()
	State() listener.State
}

// Playback is written by the speech output and read by the capture loop.
type Playback interface {
	SetSpeaking(speaking bool)
	IsAssistantSpeaking() bool
}

type Config struct {
	Addr     string
	Session  Session
	Playback Playback
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

type Server struct {
	addr     string
	session  Session
	playback Playback
	log      *slog.Logger
	handler  http.Handler
}

func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Session == nil {
		return nil, fmt.Errorf("session is nil")
	}

	if cfg.Playback == nil {
		return nil, fmt.Errorf("playback is nil")
	}

	s := &Server{
		addr:     cfg.Addr,
		session:  cfg.Session,
		playback: cfg.Playback,
		log:      cfg.Logger,
	}
	if s.log == nil {
		s.log = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /wake", s.handleWake)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /playback", s.handleGetPlayback)
	mux.HandleFunc("POST /playback", s.handleSetPlayback)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	s.handler = mux

	return s, nil
}

// Handler returns the routes without a listener, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is done and then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("control: listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errC := make(chan error, 1)
	go func() {
		s.log.Info("control server listening", "addr", ln.Addr().String())
		errC <- srv.Serve(ln)
	}()

	select {
	case err := <-errC:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control: shutdown: %w", err)
	}
	return nil
}

type stateResponse struct {
	State    string `json:"state"`
	Speaking bool   `json:"speaking"`
}

type playbackRequest struct {
	Speaking *bool `json:"speaking"`
}

func (s *Server) handleWake(w http.ResponseWriter, r *http.Request) {
	s.log.Info("manual wake requested", "remote", r.RemoteAddr)
	s.session.Trigger()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleGetPlayback(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleSetPlayback(w http.ResponseWriter, r *http.Request) {
	var req playbackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Speaking == nil {
		http.Error(w, `missing "speaking"`, http.StatusBadRequest)
		return
	}

	s.playback.SetSpeaking(*req.Speaking)
	s.log.Debug("playback state updated", "speaking", *req.Speaking)

	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) snapshot() stateResponse {
	return stateResponse{
		State:    s.session.State().String(),
		Speaking: s.playback.IsAssistantSpeaking(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
