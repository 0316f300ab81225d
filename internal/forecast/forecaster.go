// Package forecast runs several independent forecasting methods over one
// entity's historical series.
package forecast

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/timeseries"
)

// MinObservations is the shortest series any forecaster accepts
const MinObservations = 10

// Config holds forecaster settings. A MinObservations below the package
// floor is raised to it.
type Config struct {
	MinObservations int
	ConfidenceLevel float64
	Workers         int
}

// DefaultConfig returns the default forecaster settings
func DefaultConfig() Config {
	return Config{
		MinObservations: MinObservations,
		ConfidenceLevel: 0.95,
		Workers:         4,
	}
}

// Option configures a Forecaster
type Option func(*Forecaster)

// WithMethods replaces the method set
func WithMethods(methods ...Method) Option {
	return func(f *Forecaster) { f.methods = methods }
}

// Forecaster runs every configured method for a series
type Forecaster struct {
	cfg     Config
	methods []Method
	logger  *zap.Logger
}

// New creates a forecaster with the default methods
func New(cfg Config, logger *zap.Logger, opts ...Option) *Forecaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinObservations < MinObservations {
		cfg.MinObservations = MinObservations
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	f := &Forecaster{cfg: cfg, methods: DefaultMethods(), logger: logger}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type methodResult struct {
	name   string
	result Result
	err    error
}

// Forecast runs each method on the series. Methods that fail are skipped
// and logged; if every method fails the call returns ErrForecastUnavailable.
func (f *Forecaster) Forecast(ctx context.Context, series timeseries.Series, horizon int) (*Report, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("%w: horizon must be positive, got %d", apperr.ErrInvalidInput, horizon)
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}
	if len(series) < f.cfg.MinObservations {
		return nil, fmt.Errorf("%w: forecasting needs %d observations, got %d",
			apperr.ErrInsufficientData, f.cfg.MinObservations, len(series))
	}

	start := series.Last().Period + 1
	results := make([]methodResult, len(f.methods))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Workers)
	for i, m := range f.methods {
		i, m := i, m
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = f.run(m, series.Clone(), horizon, start)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Start:   start,
		Horizon: horizon,
		Results: make(map[string]Result),
		Skipped: []apperr.Skip{},
	}
	for _, res := range results {
		if res.err != nil {
			f.logger.Warn("forecast method skipped", zap.String("method", res.name), zap.Error(res.err))
			report.Skipped = append(report.Skipped, apperr.SkipOf(res.name, res.err))
			continue
		}
		report.Results[res.name] = res.result
	}

	if len(report.Results) == 0 {
		reasons := make([]string, len(report.Skipped))
		for i, s := range report.Skipped {
			reasons[i] = s.Name + ": " + s.Reason
		}
		return nil, fmt.Errorf("%w: %s", apperr.ErrForecastUnavailable, strings.Join(reasons, "; "))
	}

	f.logger.Info("forecast complete",
		zap.Int("horizon", horizon),
		zap.Int("methods", len(report.Results)),
		zap.Int("skipped", len(report.Skipped)))
	return report, nil
}

// run executes one method and enforces the result contract
func (f *Forecaster) run(m Method, series timeseries.Series, horizon, start int) (res methodResult) {
	res.name = m.Name()
	defer func() {
		if r := recover(); r != nil {
			res = methodResult{name: res.name, err: apperr.Recovered(res.name, r)}
		}
	}()

	out, err := m.Forecast(series, horizon, f.cfg.ConfidenceLevel)
	if err == nil {
		err = out.check(horizon)
	}
	if err != nil {
		res.err = apperr.Fit(res.name, err)
		return res
	}
	out.Method = res.name
	out.Start = start
	res.result = out
	return res
}
