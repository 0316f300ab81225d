// Package evaluate scores trained models and forecasts against held-out
// observations.
package evaluate

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/forecast"
	"github.com/kartoza/decision-forecast/internal/scoring"
	"github.com/kartoza/decision-forecast/internal/timeseries"
	"github.com/kartoza/decision-forecast/internal/trainer"
)

// Model is anything that predicts a target from named features
type Model interface {
	Predict(features map[string]float64) (float64, error)
}

// Record holds the metric set for one model or forecast method
type Record struct {
	Name string  `json:"name"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
	MAPE float64 `json:"mape"`
	MSE  float64 `json:"mse"`
}

// Report is a ranked list of records plus the entries that were skipped
type Report struct {
	Records []Record      `json:"records"`
	Skipped []apperr.Skip `json:"skipped"`
}

// Best returns the top ranked record
func (r *Report) Best() (Record, bool) {
	if len(r.Records) == 0 {
		return Record{}, false
	}
	return r.Records[0], true
}

// Evaluator scores models
type Evaluator struct {
	logger *zap.Logger
}

// New creates an evaluator
func New(logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{logger: logger}
}

// Evaluate predicts every row of fm with each model. A model that fails on
// any row is skipped; the rest are ranked by R² descending.
func (e *Evaluator) Evaluate(ctx context.Context, models map[string]Model, fm trainer.FeatureMatrix) (*Report, error) {
	if err := fm.Validate(); err != nil {
		return nil, err
	}
	actual := fm.Targets()

	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)

	report := &Report{Records: []Record{}, Skipped: []apperr.Skip{}}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		predicted, err := predictAll(name, models[name], fm)
		if err != nil {
			e.logger.Warn("model skipped during evaluation", zap.String("algorithm", name), zap.Error(err))
			report.Skipped = append(report.Skipped, apperr.SkipOf(name, err))
			continue
		}
		report.Records = append(report.Records, score(name, actual, predicted))
	}
	rank(report.Records)
	return report, nil
}

// EvaluateSession scores every model of a training session. The session's
// scaler is applied by each model.
func (e *Evaluator) EvaluateSession(ctx context.Context, session *trainer.Session, fm trainer.FeatureMatrix) (*Report, error) {
	models := make(map[string]Model, len(session.Models))
	for name, m := range session.Models {
		models[name] = m
	}
	return e.Evaluate(ctx, models, fm)
}

// ScoreForecasts scores each forecast on the periods it shares with actual.
// Forecasts with no overlapping period are skipped.
func (e *Evaluator) ScoreForecasts(results map[string]forecast.Result, actual timeseries.Series) *Report {
	byPeriod := make(map[int]float64, len(actual))
	for _, o := range actual {
		byPeriod[o.Period] = o.Value
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	report := &Report{Records: []Record{}, Skipped: []apperr.Skip{}}
	for _, name := range names {
		r := results[name]
		var obs, pred []float64
		for _, o := range r.Series() {
			if v, ok := byPeriod[o.Period]; ok {
				obs = append(obs, v)
				pred = append(pred, o.Value)
			}
		}
		if len(obs) == 0 {
			report.Skipped = append(report.Skipped, apperr.Skip{Name: name, Reason: "no overlapping periods"})
			continue
		}
		report.Records = append(report.Records, score(name, obs, pred))
	}
	rank(report.Records)
	return report
}

// predictAll runs the model over every row, recovering panics
func predictAll(name string, m Model, fm trainer.FeatureMatrix) (out []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, apperr.Recovered(name, r)
		}
	}()
	out = make([]float64, len(fm.Rows))
	for i, row := range fm.Rows {
		v, err := m.Predict(row.Features)
		if err != nil {
			return nil, apperr.Fit(name, fmt.Errorf("row %d: %w", i, err))
		}
		out[i] = v
	}
	if !scoring.Finite(out) {
		return nil, apperr.Fit(name, fmt.Errorf("non-finite predictions"))
	}
	return out, nil
}

func score(name string, actual, predicted []float64) Record {
	return Record{
		Name: name,
		RMSE: scoring.RMSE(actual, predicted),
		MAE:  scoring.MAE(actual, predicted),
		R2:   scoring.R2(actual, predicted),
		MAPE: scoring.MAPE(actual, predicted),
		MSE:  scoring.MSE(actual, predicted),
	}
}

// rank sorts by R² descending, ties by name
func rank(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].R2 != records[j].R2 {
			return records[i].R2 > records[j].R2
		}
		return records[i].Name < records[j].Name
	})
}
