package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kartoza/decision-forecast/internal/api"
	"github.com/kartoza/decision-forecast/internal/catalogues"
	"github.com/kartoza/decision-forecast/internal/config"
	"github.com/kartoza/decision-forecast/internal/store"
	"github.com/kartoza/decision-forecast/internal/telemetry"
)

// Server holds all the components for the web service
type Server struct {
	cfg        config.Config
	httpServer *http.Server
	router     *mux.Router
	store      *store.Store
	catalogues *catalogues.Store
	metrics    *telemetry.Metrics
	logger     *zap.Logger
}

// New creates a new Server with all components initialized. A run store
// that cannot be opened is logged and the service runs without persistence.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		router:  mux.NewRouter(),
		metrics: telemetry.New(),
		logger:  logger,
	}

	// Initialize run store
	runStore, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Warn("run store not available", zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
	} else {
		s.store = runStore
	}

	// Initialize catalogue store
	catalogueStore, err := catalogues.NewStore(cfg.DataDir)
	if err != nil {
		logger.Warn("catalogue store not available", zap.String("data_dir", cfg.DataDir), zap.Error(err))
	} else {
		s.catalogues = catalogueStore
	}

	// Set up routes
	s.setupRoutes()

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	// API routes
	apiRouter := s.router.PathPrefix("/api").Subrouter()
	apiHandler := api.NewHandler(s.cfg, s.store, s.catalogues, s.metrics, s.logger)
	apiHandler.RegisterRoutes(apiRouter)

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
}

// Router returns the configured routes
func (s *Server) Router() http.Handler {
	return s.router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(started)))
	})
}

// Start begins listening for HTTP connections
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("server listening", zap.String("url", fmt.Sprintf("http://localhost:%d", s.cfg.Port)))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	// Close store
	if s.store != nil {
		if cerr := s.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
