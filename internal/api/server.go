// Package api provides FinSight's ops HTTP surface: health, Prometheus
// metrics, and manual inspection endpoints. There is no user-facing
// trading API (spec's Non-goals exclude order/position endpoints); this
// is the operator surface only. Grounded on the teacher's
// internal/api/server.go (gorilla/mux router, rs/cors middleware,
// http.Server lifecycle), trimmed of the websocket hub and backtest
// endpoints that have no FinSight analogue.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/finsight/finsight/internal/events"
	"github.com/finsight/finsight/internal/scheduler"
	"github.com/finsight/finsight/internal/storage"
	"github.com/finsight/finsight/pkg/types"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server is FinSight's ops HTTP server.
type Server struct {
	config     types.ServerConfig
	store      *storage.Manager
	scheduler  *scheduler.Supervisor
	bus        *events.Bus
	logger     *zap.Logger
	router     *mux.Router
	httpServer *http.Server
}

// NewServer builds the router and wires its handlers against store,
// scheduler and bus. Start must be called to actually serve.
func NewServer(config types.ServerConfig, store *storage.Manager, sup *scheduler.Supervisor, bus *events.Bus, logger *zap.Logger) *Server {
	s := &Server{
		config:    config,
		store:     store,
		scheduler: sup,
		bus:       bus,
		logger:    logger,
		router:    mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/bus/stats", s.handleBusStats).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/cycles", s.handleRunCycle).Methods(http.MethodPost)

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
}

// Router exposes the underlying router for tests (httptest.NewServer).
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start serves the ops surface until Stop is called. It blocks, like
// http.Server.ListenAndServe.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting ops server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Health(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "db": stats})
}

func (s *Server) handleBusStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bus.Stats())
}

type runCycleRequest struct {
	UserID    string   `json:"userId"`
	Watchlist []string `json:"watchlist"`
}

// handleRunCycle triggers one detection cycle outside the periodic
// schedule, for operator-driven manual inspection.
func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	var req runCycleRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.UserID == "" {
		req.UserID = "default"
	}
	if len(req.Watchlist) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "watchlist is required"})
		return
	}

	report := s.scheduler.RunCycle(r.Context(), req.UserID, req.Watchlist)
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
