// Copyright 2024-2026 Aiku AI

// Package adminapi serves the operator HTTP API: listing providers, changing
// the direction of a connection and purging expired pairing tokens.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/aiku/relaybridge/pkg/bridge"
)

// maxBodySize is the maximum allowed request body (1 MB).
const maxBodySize = 1 << 20

const shutdownTimeout = 5 * time.Second

// Bridge is the part of the orchestrator the API drives.
type Bridge interface {
	Registry() *bridge.Registry
	SetDirection(ctx context.Context, id uuid.UUID, dir bridge.Direction) (*bridge.Connection, error)
	PurgeExpired(ctx context.Context) (int, error)
}

type Server struct {
	addr   string
	bridge Bridge
	log    zerolog.Logger
}

func New(addr string, b Bridge, log zerolog.Logger) *Server {
	return &Server{
		addr:   addr,
		bridge: b,
		log:    log.With().Str("component", "admin_api").Logger(),
	}
}

// Handler returns the API routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/providers", s.handleProviders)
	mux.HandleFunc("POST /api/connections/{id}/direction", s.handleSetDirection)
	mux.HandleFunc("POST /api/purge-expired", s.handlePurgeExpired)

	var h http.Handler = mux
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Handled admin API request")
	})(h)
	h = hlog.RemoteAddrHandler("remote_addr")(h)
	h = hlog.NewHandler(s.log)(h)
	return h
}

// Run listens until ctx is cancelled, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("Starting admin API")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(r, w, map[string][]string{"providers": s.bridge.Registry().Names()})
}

type directionRequest struct {
	Direction string `json:"direction"`
}

func (s *Server) handleSetDirection(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid connection id", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	var req directionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	dir, err := bridge.ParseDirection(req.Direction)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.bridge.SetDirection(r.Context(), id, dir)
	switch {
	case errors.Is(err, bridge.ErrNotFound):
		http.Error(w, "connection not found", http.StatusNotFound)
		return
	case errors.Is(err, bridge.ErrPending):
		http.Error(w, "connection is still pending", http.StatusConflict)
		return
	case errors.Is(err, bridge.ErrConflict):
		http.Error(w, "connection was modified concurrently, try again", http.StatusConflict)
		return
	case err != nil:
		hlog.FromRequest(r).Err(err).Stringer("connection_id", id).Msg("Failed to change connection direction")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(r, w, conn)
}

func (s *Server) handlePurgeExpired(w http.ResponseWriter, r *http.Request) {
	purged, err := s.bridge.PurgeExpired(r.Context())
	if err != nil {
		hlog.FromRequest(r).Err(err).Msg("Failed to purge expired connections")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	hlog.FromRequest(r).Info().Int("count", purged).Msg("Purged expired pending connections")
	writeJSON(r, w, map[string]int{"purged": purged})
}

func writeJSON(r *http.Request, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Failed to write response")
	}
}
