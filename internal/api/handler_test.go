package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"

	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/catalogues"
	"github.com/kartoza/decision-forecast/internal/config"
	"github.com/kartoza/decision-forecast/internal/ensemble"
	"github.com/kartoza/decision-forecast/internal/forecast"
	"github.com/kartoza/decision-forecast/internal/models"
	"github.com/kartoza/decision-forecast/internal/scenario"
	"github.com/kartoza/decision-forecast/internal/store"
	"github.com/kartoza/decision-forecast/internal/timeseries"
	"github.com/kartoza/decision-forecast/internal/trainer"
)

func testConfig() config.Config {
	return config.Config{
		Port:              8080,
		DataDir:           "/tmp/test",
		Version:           "test",
		DatabaseDriver:    "sqlite3",
		Workers:           2,
		ForecastHorizon:   5,
		ConfidenceLevel:   0.95,
		MinObservations:   10,
		ProjectionHorizon: 10,
		HoldoutFraction:   0.2,
		TrainingSeed:      42,
		MaxSessions:       4,
	}
}

func newTestRouter(t *testing.T, withStore bool) *mux.Router {
	t.Helper()
	var st *store.Store
	if withStore {
		var err error
		st, err = store.Open(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "runs.db"))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		t.Cleanup(func() { st.Close() })
	}
	cat, err := catalogues.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	handler := NewHandler(testConfig(), st, cat, nil, nil)
	r := mux.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func doRequest(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func growthSeries(n int) timeseries.Series {
	values := make([]float64, n)
	for i := range values {
		values[i] = 1000 * math.Pow(1.03, float64(i))
	}
	return timeseries.FromValues(2000, values...)
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t, false)
	w := doRequest(t, r, "GET", "/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]string
	json.NewDecoder(w.Body).Decode(&response)

	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%s'", response["status"])
	}
}

func TestInfoEndpoint(t *testing.T) {
	r := newTestRouter(t, true)
	w := doRequest(t, r, "GET", "/info", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(w.Body).Decode(&response)

	if response["version"] != "test" {
		t.Errorf("Expected version 'test', got '%v'", response["version"])
	}
	if response["store"] != "sqlite3" {
		t.Errorf("Expected store 'sqlite3', got '%v'", response["store"])
	}
}

func TestForecastEndpoint(t *testing.T) {
	r := newTestRouter(t, true)
	w := doRequest(t, r, "POST", "/forecast", models.ForecastRequest{
		Entity: "ZA",
		Series: growthSeries(20),
		Rule:   string(ensemble.SimpleAverage),
		Actual: timeseries.FromValues(2020, 1810, 1860),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.ForecastResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if resp.RunID == "" {
		t.Error("Expected a stored run ID")
	}
	if resp.Forecast.Start != 2020 || resp.Forecast.Horizon != 5 {
		t.Errorf("Expected start 2020 horizon 5, got %d/%d", resp.Forecast.Start, resp.Forecast.Horizon)
	}
	if _, ok := resp.Forecast.Results[forecast.MethodLogLinear]; !ok {
		t.Errorf("Expected a %s result, got %v", forecast.MethodLogLinear, resp.Forecast.Methods())
	}
	if resp.Ensemble == nil || len(resp.Ensemble.Values) != 5 {
		t.Fatalf("Expected a 5-period ensemble, got %+v", resp.Ensemble)
	}
	if resp.Scores == nil || len(resp.Scores.Records) == 0 {
		t.Errorf("Expected forecast scores, got %+v", resp.Scores)
	}
}

func TestForecastErrors(t *testing.T) {
	r := newTestRouter(t, false)

	tests := []struct {
		name   string
		req    models.ForecastRequest
		status int
	}{
		{"too short", models.ForecastRequest{Series: growthSeries(3)}, http.StatusBadRequest},
		{"negative horizon", models.ForecastRequest{Series: growthSeries(20), Horizon: -1}, http.StatusBadRequest},
		{"unknown rule", models.ForecastRequest{Series: growthSeries(20), Rule: "mode"}, http.StatusBadRequest},
		{"duplicate periods", models.ForecastRequest{Series: timeseries.Series{{Period: 1, Value: 1}, {Period: 1, Value: 2}}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, r, "POST", "/forecast", tt.req)
			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}

	req := httptest.NewRequest("POST", "/forecast", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed body, got %d", w.Code)
	}
}

func TestEnsembleEndpoint(t *testing.T) {
	r := newTestRouter(t, false)

	forecasts := map[string]forecast.Result{
		"a": {Method: "a", Start: 2020, Values: []float64{10, 20, 30}},
		"b": {Method: "b", Start: 2020, Values: []float64{12, 18, 30}},
		"c": {Method: "c", Start: 2020, Values: []float64{11, 19, 60}},
	}
	w := doRequest(t, r, "POST", "/ensemble", models.EnsembleRequest{Forecasts: forecasts, Rule: "median"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var combined ensemble.Forecast
	json.NewDecoder(w.Body).Decode(&combined)
	want := []float64{11, 19, 30}
	for i, v := range want {
		if combined.Values[i] != v {
			t.Errorf("Expected value %d to be %v, got %v", i, v, combined.Values[i])
		}
	}

	tests := []struct {
		name string
		req  models.EnsembleRequest
	}{
		{"empty", models.EnsembleRequest{Rule: "median"}},
		{"unknown rule", models.EnsembleRequest{Forecasts: forecasts, Rule: "mode"}},
		{"mismatched horizon", models.EnsembleRequest{Forecasts: map[string]forecast.Result{
			"a": {Method: "a", Start: 2020, Values: []float64{1, 2}},
			"b": {Method: "b", Start: 2020, Values: []float64{1, 2, 3}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, r, "POST", "/ensemble", tt.req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}
}

func TestProjectAndCompare(t *testing.T) {
	r := newTestRouter(t, true)

	w := doRequest(t, r, "POST", "/project", models.ProjectRequest{
		Entity:     "ZA",
		Series:     growthSeries(5),
		BirthRates: timeseries.FromValues(2000, 20, 19),
		DeathRates: timeseries.FromValues(2000, 9, 9),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var projected models.ProjectResponse
	json.NewDecoder(w.Body).Decode(&projected)
	if projected.RunID == "" {
		t.Fatal("Expected a stored run ID")
	}
	if len(projected.Report.Projections) != 5 {
		t.Errorf("Expected 5 projections, got %d", len(projected.Report.Projections))
	}
	if projected.Report.Baseline.BirthRate != 19 {
		t.Errorf("Expected baseline birth rate 19, got %v", projected.Report.Baseline.BirthRate)
	}

	path := fmt.Sprintf("/compare?run=%s&left=%s&right=%s", projected.RunID, scenario.BusinessAsUsual, scenario.HighGrowth)
	w = doRequest(t, r, "GET", path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var cmp models.ComparisonResponse
	json.NewDecoder(w.Body).Decode(&cmp)
	if len(cmp.Periods) != 10 {
		t.Fatalf("Expected 10 compared periods, got %d", len(cmp.Periods))
	}
	if cmp.MinDifference <= 0 || cmp.MaxDifference < cmp.MinDifference {
		t.Errorf("Expected high growth above baseline, got min %v max %v", cmp.MinDifference, cmp.MaxDifference)
	}

	w = doRequest(t, r, "GET", fmt.Sprintf("/compare?run=%s&left=%s&right=nope", projected.RunID, scenario.BusinessAsUsual), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown scenario, got %d", w.Code)
	}
}

func TestCataloguesEndpoints(t *testing.T) {
	r := newTestRouter(t, false)

	w := doRequest(t, r, "POST", "/catalogues", catalogues.Catalogue{
		Title: "Policy options",
		Scenarios: []scenario.Scenario{
			{Name: "stable", Adjustments: map[string]float64{scenario.BirthRateChange: -1}},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var created catalogues.Catalogue
	json.NewDecoder(w.Body).Decode(&created)

	w = doRequest(t, r, "PUT", "/catalogues/"+created.ID, catalogues.Catalogue{Description: "birth rate to zero"})
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	// birth_rate_change -1 removes births: 1000 * (0 - 10) / 1000 per step
	w = doRequest(t, r, "POST", "/project", models.ProjectRequest{
		Series:     timeseries.FromValues(2000, 1000),
		Catalogue:  created.ID,
		Horizon:    1,
		DeathRates: timeseries.FromValues(2000, 10),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var projected models.ProjectResponse
	json.NewDecoder(w.Body).Decode(&projected)
	stable, ok := projected.Report.Projections["stable"]
	if !ok || len(projected.Report.Projections) != 2 {
		t.Fatalf("Expected stable plus business_as_usual, got %v", projected.Report.Names())
	}
	if got := stable.Series[1].Value; got != 990 {
		t.Errorf("Expected 990, got %v", got)
	}

	w = doRequest(t, r, "GET", "/catalogues", nil)
	var list []catalogues.Catalogue
	json.NewDecoder(w.Body).Decode(&list)
	if len(list) != 1 || list[0].Description != "birth rate to zero" {
		t.Errorf("Expected the updated catalogue, got %+v", list)
	}

	w = doRequest(t, r, "DELETE", "/catalogues/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	w = doRequest(t, r, "GET", "/catalogues/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	w = doRequest(t, r, "POST", "/catalogues", catalogues.Catalogue{Title: "empty"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestComparisonDataMissingParams(t *testing.T) {
	r := newTestRouter(t, true)

	w := doRequest(t, r, "GET", "/compare", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	var response map[string]string
	json.NewDecoder(w.Body).Decode(&response)
	if _, hasError := response["error"]; !hasError {
		t.Error("Expected error response")
	}

	w = doRequest(t, r, "GET", "/compare?run=missing&left=a&right=b", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown run, got %d", w.Code)
	}
}

func TestDefaultScenariosEndpoint(t *testing.T) {
	r := newTestRouter(t, false)

	w := doRequest(t, r, "GET", "/scenarios/defaults?migration_rate=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp struct {
		Baseline  scenario.Baseline   `json:"baseline"`
		Scenarios []scenario.Scenario `json:"scenarios"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Scenarios) != 5 {
		t.Errorf("Expected 5 scenarios, got %d", len(resp.Scenarios))
	}
	if resp.Baseline.BirthRate != scenario.DefaultBirthRate {
		t.Errorf("Expected default birth rate, got %v", resp.Baseline.BirthRate)
	}
	if got := resp.Scenarios[1].Value(scenario.MigrationRate); got != 3 {
		t.Errorf("Expected high growth migration 3, got %v", got)
	}

	w = doRequest(t, r, "GET", "/scenarios/defaults?birth_rate=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestIndicatorsEndpoint(t *testing.T) {
	r := newTestRouter(t, false)

	w := doRequest(t, r, "POST", "/indicators", models.IndicatorsRequest{
		History: map[string]timeseries.Series{
			"fertility_rate": timeseries.FromValues(2000, 3, 2.8, 2.6),
		},
		Horizon: 3,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp models.IndicatorsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if got := resp.Projection.Indicators["fertility_rate"]; len(got) != 3 {
		t.Errorf("Expected 3 projected values, got %v", got)
	}
}

func linearMatrix(n int) trainer.FeatureMatrix {
	fm := trainer.FeatureMatrix{}
	for i := 0; i < n; i++ {
		gdp, urban := float64(i+1), float64(i%7)
		fm.Rows = append(fm.Rows, trainer.FeatureRow{
			Features: map[string]float64{"gdp": gdp, "urban": urban},
			Target:   2*gdp + 3*urban + 10,
		})
	}
	return fm
}

func TestTrainEvaluatePredict(t *testing.T) {
	r := newTestRouter(t, true)

	w := doRequest(t, r, "POST", "/train", models.TrainRequest{Matrix: linearMatrix(30)})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var trained models.TrainResponse
	json.NewDecoder(w.Body).Decode(&trained)
	if trained.Session == nil || trained.Session.ID == "" {
		t.Fatal("Expected a session")
	}
	if trained.Session.Holdout != 6 {
		t.Errorf("Expected 6 holdout rows, got %d", trained.Session.Holdout)
	}
	if _, ok := trained.Session.Models["LinearRegression"]; !ok {
		t.Errorf("Expected LinearRegression in session, got %v", trained.Session.Skipped)
	}
	id := trained.Session.ID

	w = doRequest(t, r, "POST", "/sessions/"+id+"/evaluate", models.EvaluateRequest{Matrix: linearMatrix(10)})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var evaluated models.EvaluateResponse
	json.NewDecoder(w.Body).Decode(&evaluated)
	if len(evaluated.Report.Records) == 0 {
		t.Error("Expected evaluation records")
	}

	w = doRequest(t, r, "POST", "/sessions/"+id+"/predict", models.PredictRequest{
		Model: "LinearRegression",
		Rows:  []map[string]float64{{"gdp": 50, "urban": 3}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var predicted models.PredictResponse
	json.NewDecoder(w.Body).Decode(&predicted)
	if len(predicted.Predictions) != 1 || math.Abs(predicted.Predictions[0]-119) > 1e-6 {
		t.Errorf("Expected prediction 119, got %v", predicted.Predictions)
	}

	w = doRequest(t, r, "POST", "/sessions/"+id+"/predict", models.PredictRequest{
		Rows: []map[string]float64{{"gdp": 50}},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for a missing feature, got %d", w.Code)
	}

	w = doRequest(t, r, "GET", "/sessions", nil)
	var sessions []trainer.Session
	json.NewDecoder(w.Body).Decode(&sessions)
	if len(sessions) != 1 {
		t.Errorf("Expected 1 session, got %d", len(sessions))
	}

	w = doRequest(t, r, "DELETE", "/sessions/"+id, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	w = doRequest(t, r, "POST", "/sessions/"+id+"/evaluate", models.EvaluateRequest{Matrix: linearMatrix(10)})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", w.Code)
	}
}

func TestRunsEndpoints(t *testing.T) {
	r := newTestRouter(t, true)

	w := doRequest(t, r, "GET", "/runs", nil)
	if w.Code != http.StatusOK || w.Body.String() != "[]\n" {
		t.Errorf("Expected empty list, got %d %q", w.Code, w.Body.String())
	}

	w = doRequest(t, r, "POST", "/project", models.ProjectRequest{Entity: "ZA", Series: growthSeries(3), Horizon: 2})
	var projected models.ProjectResponse
	json.NewDecoder(w.Body).Decode(&projected)

	w = doRequest(t, r, "GET", "/runs?kind=projection", nil)
	var runs []store.Run
	json.NewDecoder(w.Body).Decode(&runs)
	if len(runs) != 1 || runs[0].ID != projected.RunID || runs[0].Entity != "ZA" {
		t.Fatalf("Expected the projection run, got %+v", runs)
	}

	w = doRequest(t, r, "GET", "/runs/"+projected.RunID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	w = doRequest(t, r, "DELETE", "/runs/"+projected.RunID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	w = doRequest(t, r, "GET", "/runs/"+projected.RunID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", w.Code)
	}
}

func TestRunsWithoutStore(t *testing.T) {
	r := newTestRouter(t, false)

	w := doRequest(t, r, "GET", "/runs", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	w = doRequest(t, r, "GET", "/runs/abc", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", apperr.ErrInvalidInput), http.StatusBadRequest},
		{apperr.ErrInsufficientData, http.StatusBadRequest},
		{apperr.ErrMismatchedHorizon, http.StatusBadRequest},
		{apperr.ErrNoForecasts, http.StatusBadRequest},
		{apperr.ErrForecastUnavailable, http.StatusUnprocessableEntity},
		{apperr.ErrNotFound, http.StatusNotFound},
		{context.Canceled, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}
