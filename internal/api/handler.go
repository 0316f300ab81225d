package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/catalogues"
	"github.com/kartoza/decision-forecast/internal/config"
	"github.com/kartoza/decision-forecast/internal/ensemble"
	"github.com/kartoza/decision-forecast/internal/evaluate"
	"github.com/kartoza/decision-forecast/internal/forecast"
	"github.com/kartoza/decision-forecast/internal/indicators"
	"github.com/kartoza/decision-forecast/internal/models"
	"github.com/kartoza/decision-forecast/internal/scenario"
	"github.com/kartoza/decision-forecast/internal/store"
	"github.com/kartoza/decision-forecast/internal/telemetry"
	"github.com/kartoza/decision-forecast/internal/trainer"
)

const maxBodyBytes = 10 << 20

// Handler holds dependencies for API handlers
type Handler struct {
	cfg        config.Config
	forecaster *forecast.Forecaster
	projector  *scenario.Projector
	trainer    *trainer.Trainer
	sessions   *trainer.Sessions
	evaluator  *evaluate.Evaluator
	store      *store.Store
	catalogues *catalogues.Store
	metrics    *telemetry.Metrics
	logger     *zap.SugaredLogger
}

// NewHandler creates a new API handler. Both stores are optional; without
// them runs are not persisted and their endpoints answer 404.
func NewHandler(cfg config.Config, st *store.Store, cat *catalogues.Store, metrics *telemetry.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.New()
	}

	fcfg := forecast.DefaultConfig()
	if cfg.MinObservations > 0 {
		fcfg.MinObservations = cfg.MinObservations
	}
	if cfg.ConfidenceLevel > 0 {
		fcfg.ConfidenceLevel = cfg.ConfidenceLevel
	}
	if cfg.Workers > 0 {
		fcfg.Workers = cfg.Workers
	}

	return &Handler{
		cfg:        cfg,
		forecaster: forecast.New(fcfg, logger.Named("forecast")),
		projector:  scenario.NewProjector(logger.Named("scenario"), cfg.Workers),
		trainer:    trainer.New(logger.Named("trainer"), cfg.TrainingSeed, trainer.WithWorkers(cfg.Workers)),
		sessions:   trainer.NewSessions(cfg.MaxSessions),
		evaluator:  evaluate.New(logger.Named("evaluate")),
		store:      st,
		catalogues: cat,
		metrics:    metrics,
		logger:     logger.Named("api").Sugar(),
	}
}

// RegisterRoutes sets up all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/info", h.handleInfo).Methods("GET")

	// Forecasting
	r.HandleFunc("/forecast", h.handleForecast).Methods("POST")
	r.HandleFunc("/ensemble", h.handleEnsemble).Methods("POST")
	r.HandleFunc("/indicators", h.handleIndicators).Methods("POST")

	// Scenario projection
	r.HandleFunc("/project", h.handleProject).Methods("POST")
	r.HandleFunc("/scenarios/defaults", h.handleDefaultScenarios).Methods("GET")
	r.HandleFunc("/compare", h.handleCompare).Methods("GET")

	// Saved scenario catalogues
	r.HandleFunc("/catalogues", h.handleListCatalogues).Methods("GET")
	r.HandleFunc("/catalogues", h.handleCreateCatalogue).Methods("POST")
	r.HandleFunc("/catalogues/{id}", h.handleGetCatalogue).Methods("GET")
	r.HandleFunc("/catalogues/{id}", h.handleUpdateCatalogue).Methods("PUT")
	r.HandleFunc("/catalogues/{id}", h.handleDeleteCatalogue).Methods("DELETE")

	// Training sessions
	r.HandleFunc("/train", h.handleTrain).Methods("POST")
	r.HandleFunc("/sessions", h.handleListSessions).Methods("GET")
	r.HandleFunc("/sessions/{id}", h.handleGetSession).Methods("GET")
	r.HandleFunc("/sessions/{id}", h.handleDeleteSession).Methods("DELETE")
	r.HandleFunc("/sessions/{id}/evaluate", h.handleEvaluate).Methods("POST")
	r.HandleFunc("/sessions/{id}/predict", h.handlePredict).Methods("POST")

	// Stored runs
	r.HandleFunc("/runs", h.handleListRuns).Methods("GET")
	r.HandleFunc("/runs/{id}", h.handleGetRun).Methods("GET")
	r.HandleFunc("/runs/{id}", h.handleDeleteRun).Methods("DELETE")
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.S().Errorw("Error encoding response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrForecastUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrInvalidInput),
		errors.Is(err, apperr.ErrInsufficientData),
		errors.Is(err, apperr.ErrMismatchedHorizon),
		errors.Is(err, apperr.ErrNoForecasts),
		errors.Is(err, apperr.ErrNotFitted):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorw("request failed", "path", r.URL.Path, "error", err)
	}
	respondError(w, status, err.Error())
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// persist stores a run when a store is configured. Storage failures are
// logged and do not fail the request.
func (h *Handler) persist(ctx context.Context, kind, entity string, payload interface{}) string {
	if h.store == nil {
		return ""
	}
	run, err := h.store.Create(ctx, kind, entity, payload)
	if err != nil {
		h.logger.Warnw("failed to store run", "kind", kind, "error", err)
		return ""
	}
	return run.ID
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	driver := ""
	if h.store != nil {
		driver = h.cfg.DatabaseDriver
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"version":            h.cfg.Version,
		"methods":            forecast.MethodNames,
		"rules":              ensemble.Rules,
		"forecast_horizon":   h.cfg.ForecastHorizon,
		"projection_horizon": h.cfg.ProjectionHorizon,
		"workers":            h.cfg.Workers,
		"store":              driver,
	})
}

func (h *Handler) handleForecast(w http.ResponseWriter, r *http.Request) {
	var req models.ForecastRequest
	if !h.decode(w, r, &req) {
		return
	}
	horizon := req.Horizon
	if horizon == 0 {
		horizon = h.cfg.ForecastHorizon
	}

	started := time.Now()
	report, err := h.forecaster.Forecast(r.Context(), req.Series, horizon)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.ObserveSkipped("forecast", report.Skipped)

	resp := models.ForecastResponse{Entity: req.Entity, Forecast: report}
	if req.Rule != "" {
		rule, err := ensemble.ParseRule(req.Rule)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		combined, err := ensemble.Combine(report.Results, rule)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.Ensemble = &combined
	}
	if len(req.Actual) > 0 {
		if err := req.Actual.Validate(); err != nil {
			h.fail(w, r, err)
			return
		}
		resp.Scores = h.evaluator.ScoreForecasts(report.Results, req.Actual)
	}

	resp.RunID = h.persist(r.Context(), telemetry.KindForecast, req.Entity, resp)
	h.metrics.ObserveRun(telemetry.KindForecast, started)
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleEnsemble(w http.ResponseWriter, r *http.Request) {
	var req models.EnsembleRequest
	if !h.decode(w, r, &req) {
		return
	}
	name := req.Rule
	if name == "" {
		name = string(ensemble.WeightedAverage)
	}
	rule, err := ensemble.ParseRule(name)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	started := time.Now()
	combined, err := ensemble.Combine(req.Forecasts, rule)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.ObserveRun(telemetry.KindEnsemble, started)
	respondJSON(w, http.StatusOK, combined)
}

func (h *Handler) handleIndicators(w http.ResponseWriter, r *http.Request) {
	var req models.IndicatorsRequest
	if !h.decode(w, r, &req) {
		return
	}
	horizon := req.Horizon
	if horizon == 0 {
		horizon = h.cfg.ProjectionHorizon
	}

	started := time.Now()
	projection, err := indicators.Project(req.History, horizon)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.ObserveSkipped("indicators", projection.Skipped)

	resp := models.IndicatorsResponse{Entity: req.Entity, Projection: projection}
	resp.RunID = h.persist(r.Context(), telemetry.KindIndicators, req.Entity, resp)
	h.metrics.ObserveRun(telemetry.KindIndicators, started)
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleProject(w http.ResponseWriter, r *http.Request) {
	var req models.ProjectRequest
	if !h.decode(w, r, &req) {
		return
	}
	horizon := req.Horizon
	if horizon == 0 {
		horizon = h.cfg.ProjectionHorizon
	}

	baseline := scenario.BaselineFrom(req.BirthRates, req.DeathRates, req.MigrationRates)
	if req.Baseline != nil {
		baseline = *req.Baseline
	}
	scenarios := req.Scenarios
	if len(scenarios) == 0 && req.Catalogue != "" {
		if h.catalogues == nil {
			respondError(w, http.StatusNotFound, "Catalogue storage is not configured")
			return
		}
		c, err := h.catalogues.Get(req.Catalogue)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		scenarios = c.Scenarios
	}
	if len(scenarios) == 0 {
		scenarios = scenario.DefaultScenarios(baseline)
	}

	started := time.Now()
	report, err := h.projector.Project(r.Context(), req.Series, baseline, scenarios, horizon)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.ObserveDiverged(report.Diverged)

	resp := models.ProjectResponse{Entity: req.Entity, Report: report}
	resp.RunID = h.persist(r.Context(), telemetry.KindProjection, req.Entity, resp)
	h.metrics.ObserveRun(telemetry.KindProjection, started)
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDefaultScenarios(w http.ResponseWriter, r *http.Request) {
	baseline := scenario.BaselineFrom(nil, nil, nil)
	q := r.URL.Query()
	for key, target := range map[string]*float64{
		"birth_rate":     &baseline.BirthRate,
		"death_rate":     &baseline.DeathRate,
		"migration_rate": &baseline.MigrationRate,
	} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s: %s", key, raw))
			return
		}
		*target = v
		if key == "migration_rate" {
			baseline.HasMigration = true
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"baseline":  baseline,
		"scenarios": scenario.DefaultScenarios(baseline),
	})
}

func (h *Handler) handleCompare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	runID := q.Get("run")
	left := q.Get("left")
	right := q.Get("right")
	if runID == "" || left == "" || right == "" {
		respondError(w, http.StatusBadRequest, "Required parameters: run, left, right")
		return
	}
	if h.store == nil {
		respondError(w, http.StatusNotFound, "Run storage is not configured")
		return
	}

	run, err := h.store.Get(r.Context(), runID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if run.Kind != telemetry.KindProjection {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Run %s is a %s run, not a projection", runID, run.Kind))
		return
	}
	var stored models.ProjectResponse
	if err := run.Decode(&stored); err != nil || stored.Report == nil {
		respondError(w, http.StatusInternalServerError, "Stored projection could not be read")
		return
	}

	lp, ok := stored.Report.Projections[left]
	if !ok {
		respondError(w, http.StatusNotFound, "Scenario not found: "+left)
		return
	}
	rp, ok := stored.Report.Projections[right]
	if !ok {
		respondError(w, http.StatusNotFound, "Scenario not found: "+right)
		return
	}
	cmp, err := scenario.Compare(lp, rp)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := models.ComparisonResponse{
		RunID:   runID,
		Left:    cmp.Left,
		Right:   cmp.Right,
		Periods: cmp.Periods,
	}
	for i, d := range cmp.Periods {
		if i == 0 || d.Difference < resp.MinDifference {
			resp.MinDifference = d.Difference
		}
		if i == 0 || d.Difference > resp.MaxDifference {
			resp.MaxDifference = d.Difference
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) requireCatalogues(w http.ResponseWriter) bool {
	if h.catalogues == nil {
		respondError(w, http.StatusNotFound, "Catalogue storage is not configured")
		return false
	}
	return true
}

func (h *Handler) handleListCatalogues(w http.ResponseWriter, r *http.Request) {
	if h.catalogues == nil {
		respondJSON(w, http.StatusOK, []*catalogues.Catalogue{})
		return
	}
	list, err := h.catalogues.List()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreateCatalogue(w http.ResponseWriter, r *http.Request) {
	if !h.requireCatalogues(w) {
		return
	}
	var c catalogues.Catalogue
	if !h.decode(w, r, &c) {
		return
	}
	created, err := h.catalogues.Create(&c)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetCatalogue(w http.ResponseWriter, r *http.Request) {
	if !h.requireCatalogues(w) {
		return
	}
	c, err := h.catalogues.Get(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handler) handleUpdateCatalogue(w http.ResponseWriter, r *http.Request) {
	if !h.requireCatalogues(w) {
		return
	}
	var updates catalogues.Catalogue
	if !h.decode(w, r, &updates) {
		return
	}
	c, err := h.catalogues.Update(mux.Vars(r)["id"], &updates)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handler) handleDeleteCatalogue(w http.ResponseWriter, r *http.Request) {
	if !h.requireCatalogues(w) {
		return
	}
	if err := h.catalogues.Delete(mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req models.TrainRequest
	if !h.decode(w, r, &req) {
		return
	}
	fraction := req.HoldoutFraction
	if fraction == 0 {
		fraction = h.cfg.HoldoutFraction
	}

	started := time.Now()
	session, err := h.trainer.Train(r.Context(), req.Matrix, fraction)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sessions.Put(session)
	h.metrics.ObserveSkipped("training", session.Skipped)

	resp := models.TrainResponse{Session: session}
	resp.RunID = h.persist(r.Context(), telemetry.KindTraining, session.ID, resp)
	h.metrics.ObserveRun(telemetry.KindTraining, started)
	respondJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.sessions.List())
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Delete(mux.Vars(r)["id"]) {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req models.EvaluateRequest
	if !h.decode(w, r, &req) {
		return
	}

	started := time.Now()
	report, err := h.evaluator.EvaluateSession(r.Context(), session, req.Matrix)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.ObserveSkipped("evaluation", report.Skipped)

	resp := models.EvaluateResponse{Session: session.ID, Report: report}
	resp.RunID = h.persist(r.Context(), telemetry.KindEvaluation, session.ID, resp)
	h.metrics.ObserveRun(telemetry.KindEvaluation, started)
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req models.PredictRequest
	if !h.decode(w, r, &req) {
		return
	}

	var model *trainer.TrainedModel
	if req.Model == "" {
		model = session.BestModel()
	} else {
		model = session.Models[req.Model]
	}
	if model == nil {
		respondError(w, http.StatusNotFound, "Model not available in session")
		return
	}

	predictions := make([]float64, len(req.Rows))
	for i, row := range req.Rows {
		v, err := model.Predict(row)
		if err != nil {
			h.fail(w, r, fmt.Errorf("row %d: %w", i, err))
			return
		}
		predictions[i] = v
	}
	respondJSON(w, http.StatusOK, models.PredictResponse{Model: model.Name, Predictions: predictions})
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondJSON(w, http.StatusOK, []store.Run{})
		return
	}
	runs, err := h.store.List(r.Context(), r.URL.Query().Get("kind"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusNotFound, "Run storage is not configured")
		return
	}
	run, err := h.store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (h *Handler) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusNotFound, "Run storage is not configured")
		return
	}
	if err := h.store.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
