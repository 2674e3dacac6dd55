// Package api provides the HTTP and WebSocket server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/atlas-desktop/journal-backend/internal/insights"
	"github.com/atlas-desktop/journal-backend/internal/montecarlo"
	"github.com/atlas-desktop/journal-backend/internal/observability"
	"github.com/atlas-desktop/journal-backend/internal/sizing"
	"github.com/atlas-desktop/journal-backend/pkg/types"
)

const maxRequestBody = 1 << 20

// Server is the HTTP/WebSocket API server
type Server struct {
	logger     *zap.Logger
	config     *types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	hub        *Hub
	simulator  *montecarlo.Simulator
	results    *ResultRegistry
	limits     montecarlo.Limits
	metrics    *observability.Metrics
	gatherer   prometheus.Gatherer
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics records API metrics and serves gatherer at /metrics.
func WithMetrics(metrics *observability.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = metrics
		s.gatherer = gatherer
	}
}

// WithLimits caps the size of incoming simulation requests.
func WithLimits(limits montecarlo.Limits) Option {
	return func(s *Server) { s.limits = limits }
}

// NewServer creates a new API server and starts its WebSocket hub.
func NewServer(logger *zap.Logger, config *types.ServerConfig, simulator *montecarlo.Simulator, opts ...Option) *Server {
	cfg := *config
	config = &cfg
	if config.WebSocketPath == "" {
		config.WebSocketPath = "/ws"
	}

	server := &Server{
		logger:    logger.Named("api"),
		config:    config,
		router:    mux.NewRouter(),
		simulator: simulator,
		results:   NewResultRegistry(config.ResultCapacity),
	}
	for _, opt := range opts {
		opt(server)
	}
	server.hub = NewHub(logger, server.metrics)
	go server.hub.Run()

	server.setupRoutes()
	return server
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")

	// Simulation endpoints
	s.router.HandleFunc("/api/v1/simulations", s.handleRunSimulation).Methods("POST")
	s.router.HandleFunc("/api/v1/simulations", s.handleListSimulations).Methods("GET")
	s.router.HandleFunc("/api/v1/simulations/{id}", s.handleGetSimulation).Methods("GET")
	s.router.HandleFunc("/api/v1/simulations/{id}/sample", s.handleGetSampleRun).Methods("GET")

	// Sizing
	s.router.HandleFunc("/api/v1/sizing/kelly", s.handleKelly).Methods("POST")

	if s.config.EnableMetrics && s.gatherer != nil {
		s.router.Handle("/metrics", observability.Handler(s.gatherer)).Methods("GET")
	}

	// WebSocket
	s.router.HandleFunc(s.config.WebSocketPath, s.hub.ServeWS)
}

// Router returns the HTTP handler without CORS, for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting API server", zap.String("addr", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:  "healthy",
		Time:    time.Now().Unix(),
		Results: s.results.Len(),
		Clients: s.hub.ClientCount(),
	})
}

// handleRunSimulation runs a simulation synchronously and stores the result.
// Progress is published on the simulation's WebSocket channel while it runs.
func (s *Server) handleRunSimulation(w http.ResponseWriter, r *http.Request) {
	var req types.SimulationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	id, err := req.ResolveID()
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, types.ErrorResponse{
			Error:  "Invalid simulation parameters",
			Fields: []*montecarlo.ValidationError{{Field: "id", Reason: "must be a UUID"}},
		})
		return
	}
	if s.results.Has(id) {
		s.writeError(w, http.StatusConflict, "Simulation already exists")
		return
	}

	params := req.ToParams().Clamp(s.limits)
	channel := SimulationChannel(id)

	opts := []montecarlo.RunOption{
		montecarlo.WithProgress(func(completed, total int) {
			s.hub.PublishToChannel(channel, MsgTypeSimulationProgress, types.SimulationProgress{
				ID:        id,
				Completed: completed,
				Total:     total,
				Percent:   100 * float64(completed) / float64(total),
			})
		}),
	}
	if req.Seed != nil {
		opts = append(opts, montecarlo.WithSeed(*req.Seed))
	}

	start := time.Now()
	result, err := s.simulator.RunSimulation(r.Context(), params, opts...)
	if err != nil {
		s.publishComplete(id, "failed", err)

		var verrs montecarlo.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			s.writeJSON(w, http.StatusBadRequest, types.ErrorResponse{
				Error:  "Invalid simulation parameters",
				Fields: verrs,
			})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			s.writeError(w, http.StatusServiceUnavailable, "Simulation cancelled")
		default:
			s.logger.Error("Simulation failed", zap.String("id", id), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "Simulation failed")
		}
		return
	}

	resp := &types.SimulationResponse{
		ID:          id,
		Result:      result,
		Insights:    insights.Generate(result),
		CompletedAt: time.Now().UTC(),
		Duration:    time.Since(start),
	}
	if !s.results.Put(resp) {
		s.writeError(w, http.StatusConflict, "Simulation already exists")
		return
	}
	s.metrics.SetResultsRetained(s.results.Len())
	s.publishComplete(id, "completed", nil)

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) publishComplete(id, status string, err error) {
	msg := types.SimulationComplete{ID: id, Status: status}
	if err != nil {
		msg.Error = err.Error()
	}
	s.hub.PublishToChannel(SimulationChannel(id), MsgTypeSimulationComplete, msg)
	s.hub.PublishToChannel(SimulationsChannel, MsgTypeSimulationComplete, msg)
}

// handleListSimulations returns summaries of retained simulations
func (s *Server) handleListSimulations(w http.ResponseWriter, r *http.Request) {
	list := s.results.List()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"simulations": list,
		"count":       len(list),
	})
}

// handleGetSimulation returns a stored simulation
func (s *Server) handleGetSimulation(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.results.Get(mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, http.StatusNotFound, "Simulation not found")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleGetSampleRun returns the representative run of a stored simulation
func (s *Server) handleGetSampleRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	resp, ok := s.results.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Simulation not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        id,
		"sampleRun": resp.Result.SampleRun,
	})
}

// handleKelly computes Kelly fractions for a win rate and reward/risk ratio
func (s *Server) handleKelly(w http.ResponseWriter, r *http.Request) {
	var req types.KellyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if verrs := req.Validate(); len(verrs) > 0 {
		s.writeJSON(w, http.StatusBadRequest, types.ErrorResponse{
			Error:  "Invalid Kelly parameters",
			Fields: verrs,
		})
		return
	}

	k := sizing.Kelly(req.WinRate.InexactFloat64(), req.RewardRiskRatio.InexactFloat64())
	resp := types.KellyResponse{
		KellyResult:         k,
		RecommendedFraction: k.RecommendedFraction(),
	}
	if req.Balance != nil {
		risk := sizing.SuggestRisk(*req.Balance, resp.RecommendedFraction)
		resp.SuggestedRisk = &risk
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// writeJSON encodes v before writing the header, so an encoding failure turns
// into a 500 instead of a truncated 200.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode response", zap.Int("status", status), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Failed to encode response"}` + "\n"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		s.logger.Debug("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, types.ErrorResponse{Error: message})
}
