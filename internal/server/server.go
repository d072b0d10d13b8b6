package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dealerworks/lotsync/internal/config"
	"github.com/dealerworks/lotsync/internal/engine"
	"github.com/dealerworks/lotsync/internal/store"
)

// Server exposes the sync trigger and the back-office inventory API.
type Server struct {
	engine     *engine.Engine
	store      *store.Store
	config     *config.Config
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new Server instance.
func NewServer(eng *engine.Engine, st *store.Store, cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine: eng,
		store:  st,
		config: cfg,
		logger: logger,
	}
}

// Start starts the HTTP server on the given listen address.
func (s *Server) Start(listenAddr string) error {
	mux := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         listenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		// Sync batches fetch and reconcile within the request, so writes
		// get a much longer budget than the other routes need.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", listenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes registers all HTTP routes on a new ServeMux.
// Uses Go 1.22+ enhanced routing with method prefixes and path variables.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Sync trigger
	mux.HandleFunc("POST /api/sync", s.requireAdmin(s.handleSync))

	// Inventory
	mux.HandleFunc("GET /api/vehicles", s.handleListVehicles)
	mux.HandleFunc("GET /api/vehicles/search", s.handleSearchVehicles)
	mux.HandleFunc("GET /api/vehicles/{id}", s.handleGetVehicle)
	mux.HandleFunc("POST /api/vehicles/source-backfill", s.requireAdmin(s.handleSourceBackfill))
	mux.HandleFunc("POST /api/vehicles/sold", s.requireAdmin(s.handleSoldVehicles))

	// Images
	mux.HandleFunc("POST /api/images/{id}/primary", s.requireAdmin(s.handleSetPrimaryImage))
	mux.HandleFunc("DELETE /api/images/{id}", s.requireAdmin(s.handleDeleteImage))

	// Offers
	mux.HandleFunc("GET /api/offers", s.handleListOffers)
	mux.HandleFunc("POST /api/offers", s.requireAdmin(s.handleCreateOffer))
	mux.HandleFunc("GET /api/offers/latest", s.handleLatestOffer)
	mux.HandleFunc("GET /api/offers/{id}", s.handleGetOffer)
	mux.HandleFunc("PUT /api/offers/{id}", s.requireAdmin(s.handleUpdateOffer))
	mux.HandleFunc("DELETE /api/offers/{id}", s.requireAdmin(s.handleDeleteOffer))
	mux.HandleFunc("PUT /api/offers/{id}/vehicles", s.requireAdmin(s.handleSetOfferVehicles))

	// Status
	mux.HandleFunc("GET /api/status", s.handleStatus)

	return mux
}

// requireAdmin guards a handler with a bearer token check. With no token
// configured, every admin route refuses service rather than running open.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.Admin.Token == "" {
			jsonError(w, http.StatusServiceUnavailable, "admin token not configured")
			return
		}

		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.Admin.Token)) != 1 {
			jsonError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, r)
	}
}

// jsonError writes a JSON error response with the given status code
func jsonError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response with the given status code
func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
