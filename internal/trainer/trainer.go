// Package trainer fits the regression panel to a cross-sectional feature
// matrix and keeps the fitted models in a Session for later evaluation.
package trainer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/regression"
	"github.com/kartoza/decision-forecast/internal/scoring"
)

// Metrics holds train and holdout scores for one model
type Metrics struct {
	TrainRMSE   float64 `json:"train_rmse"`
	TrainMAE    float64 `json:"train_mae"`
	TrainR2     float64 `json:"train_r2"`
	HoldoutRMSE float64 `json:"holdout_rmse"`
	HoldoutMAE  float64 `json:"holdout_mae"`
	HoldoutR2   float64 `json:"holdout_r2"`
}

// FeatureImportance is one entry of an importance ranking
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// TrainedModel is a fitted algorithm together with the session's scaler
type TrainedModel struct {
	Name       string                 `json:"name"`
	Metrics    Metrics                `json:"metrics"`
	Importance []FeatureImportance    `json:"importance,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`

	regressor regression.Regressor
	scaler    *Scaler
	columns   []string
}

// Predict scores one row of raw, unscaled features
func (m *TrainedModel) Predict(features map[string]float64) (float64, error) {
	row := make([]float64, len(m.columns))
	for j, name := range m.columns {
		v, ok := features[name]
		if !ok {
			return 0, fmt.Errorf("%w: missing feature %q", apperr.ErrInvalidInput, name)
		}
		row[j] = v
	}
	m.scaler.TransformRow(row)
	out, err := m.regressor.Predict(mat.NewDense(1, len(row), row))
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// Session owns the models fitted by one Train call
type Session struct {
	ID        string                   `json:"id"`
	CreatedAt time.Time                `json:"created_at"`
	Columns   []string                 `json:"columns"`
	Scaler    *Scaler                  `json:"scaler"`
	Models    map[string]*TrainedModel `json:"models"`
	Skipped   []apperr.Skip            `json:"skipped"`
	Best      string                   `json:"best,omitempty"`
	TrainRows int                      `json:"train_rows"`
	Holdout   int                      `json:"holdout_rows"`
}

// BestModel returns the selected model, or nil when every algorithm failed
func (s *Session) BestModel() *TrainedModel {
	if s.Best == "" {
		return nil
	}
	return s.Models[s.Best]
}

// Option configures a Trainer
type Option func(*Trainer)

// WithWorkers bounds the number of algorithms fitted at once
func WithWorkers(n int) Option {
	return func(t *Trainer) {
		if n > 0 {
			t.workers = n
		}
	}
}

// WithRegressors replaces the algorithm panel
func WithRegressors(factories ...regression.Factory) Option {
	return func(t *Trainer) { t.factories = factories }
}

// Trainer fits the regression panel
type Trainer struct {
	logger    *zap.Logger
	workers   int
	factories []regression.Factory
}

// New creates a trainer using the default panel seeded with seed
func New(logger *zap.Logger, seed int64, opts ...Option) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Trainer{
		logger:    logger,
		workers:   4,
		factories: regression.DefaultPanel(seed),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type fitResult struct {
	name  string
	model *TrainedModel
	err   error
}

// Train splits the matrix without shuffling, standardizes on the training
// partition and fits every algorithm independently. Algorithm failures are
// reported in Session.Skipped.
func (t *Trainer) Train(ctx context.Context, fm FeatureMatrix, holdoutFraction float64) (*Session, error) {
	if err := fm.Validate(); err != nil {
		return nil, err
	}
	if !(holdoutFraction > 0 && holdoutFraction < 1) {
		return nil, fmt.Errorf("%w: holdout fraction %v must be in (0, 1)", apperr.ErrInvalidInput, holdoutFraction)
	}

	n := len(fm.Rows)
	nHoldout := int(math.Ceil(float64(n) * holdoutFraction))
	nTrain := n - nHoldout
	if nTrain < 2 || nHoldout < 1 {
		return nil, fmt.Errorf("%w: %d rows cannot be split into training and holdout partitions", apperr.ErrInsufficientData, n)
	}

	cols := fm.ColumnNames()
	rawTrain, yTrain := fm.design(cols, 0, nTrain)
	rawHoldout, yHoldout := fm.design(cols, nTrain, n)

	scaler := FitScaler(rawTrain)
	xTrain := scaler.Transform(rawTrain)
	xHoldout := scaler.Transform(rawHoldout)

	results := make([]fitResult, len(t.factories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for i, factory := range t.factories {
		i, factory := i, factory
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = fitOne(factory, xTrain, yTrain, xHoldout, yHoldout, scaler, cols)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	session := &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Columns:   cols,
		Scaler:    scaler,
		Models:    make(map[string]*TrainedModel),
		Skipped:   []apperr.Skip{},
		TrainRows: nTrain,
		Holdout:   nHoldout,
	}
	for _, res := range results {
		if res.err != nil {
			t.logger.Warn("algorithm skipped", zap.String("algorithm", res.name), zap.Error(res.err))
			session.Skipped = append(session.Skipped, apperr.SkipOf(res.name, res.err))
			continue
		}
		session.Models[res.name] = res.model
	}
	session.Best = selectBest(session.Models)

	t.logger.Info("training complete",
		zap.String("session", session.ID),
		zap.Int("models", len(session.Models)),
		zap.Int("skipped", len(session.Skipped)),
		zap.String("best", session.Best))
	return session, nil
}

// fitOne fits and scores a single algorithm, converting panics into a FitError
func fitOne(factory regression.Factory, xTrain *mat.Dense, yTrain []float64, xHoldout *mat.Dense, yHoldout []float64, scaler *Scaler, cols []string) (res fitResult) {
	res.name = "unknown"
	defer func() {
		if r := recover(); r != nil {
			res = fitResult{name: res.name, err: apperr.Recovered(res.name, r)}
		}
	}()

	reg := factory()
	res.name = reg.Name()

	if err := reg.Fit(xTrain, yTrain); err != nil {
		res.err = apperr.Fit(res.name, err)
		return res
	}
	trainPred, err := reg.Predict(xTrain)
	if err != nil {
		res.err = apperr.Fit(res.name, err)
		return res
	}
	holdoutPred, err := reg.Predict(xHoldout)
	if err != nil {
		res.err = apperr.Fit(res.name, err)
		return res
	}
	if !scoring.Finite(trainPred) || !scoring.Finite(holdoutPred) {
		res.err = apperr.Fit(res.name, fmt.Errorf("non-finite predictions"))
		return res
	}

	model := &TrainedModel{
		Name: res.name,
		Metrics: Metrics{
			TrainRMSE:   scoring.RMSE(yTrain, trainPred),
			TrainMAE:    scoring.MAE(yTrain, trainPred),
			TrainR2:     scoring.R2(yTrain, trainPred),
			HoldoutRMSE: scoring.RMSE(yHoldout, holdoutPred),
			HoldoutMAE:  scoring.MAE(yHoldout, holdoutPred),
			HoldoutR2:   scoring.R2(yHoldout, holdoutPred),
		},
		regressor: reg,
		scaler:    scaler,
		columns:   cols,
	}
	if imp, ok := reg.(regression.Importancer); ok {
		model.Importance = rankImportance(cols, imp.FeatureImportances())
	}
	if d, ok := reg.(regression.Describer); ok {
		model.Details = d.Describe()
	}
	res.model = model
	return res
}

// rankImportance pairs importances with column names, sorted descending
func rankImportance(cols []string, values []float64) []FeatureImportance {
	out := make([]FeatureImportance, 0, len(values))
	for j, v := range values {
		if j < len(cols) {
			out = append(out, FeatureImportance{Feature: cols[j], Importance: v})
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Importance != out[b].Importance {
			return out[a].Importance > out[b].Importance
		}
		return out[a].Feature < out[b].Feature
	})
	return out
}

// selectBest picks max holdout R², then min holdout RMSE, then name
func selectBest(models map[string]*TrainedModel) string {
	best := ""
	for name, m := range models {
		if best == "" {
			best = name
			continue
		}
		b := models[best].Metrics
		switch {
		case m.Metrics.HoldoutR2 > b.HoldoutR2:
			best = name
		case m.Metrics.HoldoutR2 < b.HoldoutR2:
		case m.Metrics.HoldoutRMSE < b.HoldoutRMSE:
			best = name
		case m.Metrics.HoldoutRMSE == b.HoldoutRMSE && name < best:
			best = name
		}
	}
	return best
}
