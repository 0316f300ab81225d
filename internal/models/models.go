package models

import (
	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/ensemble"
	"github.com/kartoza/decision-forecast/internal/evaluate"
	"github.com/kartoza/decision-forecast/internal/forecast"
	"github.com/kartoza/decision-forecast/internal/indicators"
	"github.com/kartoza/decision-forecast/internal/scenario"
	"github.com/kartoza/decision-forecast/internal/timeseries"
	"github.com/kartoza/decision-forecast/internal/trainer"
)

// ForecastRequest asks for every forecasting method over one series.
// When Rule is set the results are also combined; when Actual is set the
// results are scored against it.
type ForecastRequest struct {
	Entity  string            `json:"entity,omitempty"`
	Series  timeseries.Series `json:"series"`
	Horizon int               `json:"horizon,omitempty"`
	Rule    string            `json:"rule,omitempty"`
	Actual  timeseries.Series `json:"actual,omitempty"`
}

// ForecastResponse contains the per-method forecasts
type ForecastResponse struct {
	RunID    string             `json:"run_id,omitempty"`
	Entity   string             `json:"entity,omitempty"`
	Forecast *forecast.Report   `json:"forecast"`
	Ensemble *ensemble.Forecast `json:"ensemble,omitempty"`
	Scores   *evaluate.Report   `json:"scores,omitempty"`
}

// ForecastBatch is the CLI output for a multi-entity input. Entities that
// could not be forecast are listed in Failed with the cause.
type ForecastBatch struct {
	Forecasts []ForecastResponse `json:"forecasts"`
	Failed    []apperr.Skip      `json:"failed"`
}

// EnsembleRequest combines caller-supplied forecasts
type EnsembleRequest struct {
	Forecasts map[string]forecast.Result `json:"forecasts"`
	Rule      string                     `json:"rule"`
}

// ProjectRequest runs scenario projections for one entity. Rate series
// seed the baseline unless Baseline is given. Scenarios come from the
// request, else from a saved catalogue, else the default set.
type ProjectRequest struct {
	Entity         string              `json:"entity,omitempty"`
	Catalogue      string              `json:"catalogue,omitempty"`
	Series         timeseries.Series   `json:"series"`
	BirthRates     timeseries.Series   `json:"birth_rates,omitempty"`
	DeathRates     timeseries.Series   `json:"death_rates,omitempty"`
	MigrationRates timeseries.Series   `json:"migration_rates,omitempty"`
	Baseline       *scenario.Baseline  `json:"baseline,omitempty"`
	Scenarios      []scenario.Scenario `json:"scenarios,omitempty"`
	Horizon        int                 `json:"horizon,omitempty"`
}

// ProjectResponse contains one projection per scenario
type ProjectResponse struct {
	RunID  string           `json:"run_id,omitempty"`
	Entity string           `json:"entity,omitempty"`
	Report *scenario.Report `json:"report"`
}

// ComparisonResponse contains the period-by-period gap between two
// scenarios of a stored projection
type ComparisonResponse struct {
	RunID         string                      `json:"run_id"`
	Left          string                      `json:"left"`
	Right         string                      `json:"right"`
	Periods       []scenario.PeriodDifference `json:"periods"`
	MinDifference float64                     `json:"min_difference"`
	MaxDifference float64                     `json:"max_difference"`
}

// IndicatorsRequest projects demographic indicators
type IndicatorsRequest struct {
	Entity  string                       `json:"entity,omitempty"`
	History map[string]timeseries.Series `json:"history"`
	Horizon int                          `json:"horizon,omitempty"`
}

// IndicatorsResponse contains the projected indicators
type IndicatorsResponse struct {
	RunID      string                 `json:"run_id,omitempty"`
	Entity     string                 `json:"entity,omitempty"`
	Projection *indicators.Projection `json:"projection"`
}

// TrainRequest fits the regression panel
type TrainRequest struct {
	Matrix          trainer.FeatureMatrix `json:"matrix"`
	HoldoutFraction float64               `json:"holdout_fraction,omitempty"`
}

// TrainResponse contains the training session
type TrainResponse struct {
	RunID   string           `json:"run_id,omitempty"`
	Session *trainer.Session `json:"session"`
}

// EvaluateRequest scores a session's models on new rows
type EvaluateRequest struct {
	Matrix trainer.FeatureMatrix `json:"matrix"`
}

// EvaluateResponse contains the ranked performance records
type EvaluateResponse struct {
	RunID   string           `json:"run_id,omitempty"`
	Session string           `json:"session"`
	Report  *evaluate.Report `json:"report"`
}

// PredictRequest scores rows with one model of a session; an empty Model
// uses the session's best model
type PredictRequest struct {
	Model string               `json:"model,omitempty"`
	Rows  []map[string]float64 `json:"rows"`
}

// PredictResponse contains predictions aligned with the request rows
type PredictResponse struct {
	Model       string    `json:"model"`
	Predictions []float64 `json:"predictions"`
}
