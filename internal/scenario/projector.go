package scenario

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/timeseries"
)

// Projection is the historical series followed by the simulated periods of
// one scenario. A diverged projection stops at its last valid step.
type Projection struct {
	Scenario   string            `json:"scenario"`
	Historical int               `json:"historical"`
	Series     timeseries.Series `json:"series"`
	Diverged   bool              `json:"diverged"`
	Reason     string            `json:"reason,omitempty"`
}

// Simulated returns only the projected part of the series
func (p Projection) Simulated() timeseries.Series {
	return p.Series[p.Historical:]
}

// Report holds one projection per scenario
type Report struct {
	Baseline    Baseline              `json:"baseline"`
	Horizon     int                   `json:"horizon"`
	Projections map[string]Projection `json:"projections"`
	Diverged    []apperr.Skip         `json:"diverged"`
}

// Names returns the scenario names with business_as_usual first
func (r *Report) Names() []string {
	names := make([]string, 0, len(r.Projections))
	for name := range r.Projections {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == BusinessAsUsual || names[j] == BusinessAsUsual {
			return names[i] == BusinessAsUsual
		}
		return names[i] < names[j]
	})
	return names
}

// Projector runs scenario simulations
type Projector struct {
	logger  *zap.Logger
	workers int
}

// NewProjector creates a projector running up to workers scenarios at once
func NewProjector(logger *zap.Logger, workers int) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 4
	}
	return &Projector{logger: logger, workers: workers}
}

// Project simulates every scenario over horizon periods. A business-as-usual
// scenario built from the baseline is added when absent.
func (p *Projector) Project(ctx context.Context, series timeseries.Series, baseline Baseline, scenarios []Scenario, horizon int) (*Report, error) {
	if len(series) < 1 {
		return nil, fmt.Errorf("%w: projection needs at least one observation", apperr.ErrInsufficientData)
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}
	if horizon < 1 {
		return nil, fmt.Errorf("%w: horizon must be positive, got %d", apperr.ErrInvalidInput, horizon)
	}
	if err := checkBaseline(baseline); err != nil {
		return nil, err
	}

	scenarios, err := withBusinessAsUsual(scenarios, baseline)
	if err != nil {
		return nil, err
	}

	projections := make([]Projection, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, s := range scenarios {
		i, s := i, s
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			projections[i] = simulate(series, baseline, s, horizon)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Baseline:    baseline,
		Horizon:     horizon,
		Projections: make(map[string]Projection, len(projections)),
		Diverged:    []apperr.Skip{},
	}
	for _, proj := range projections {
		if proj.Diverged {
			p.logger.Warn("scenario diverged",
				zap.String("scenario", proj.Scenario),
				zap.Int("steps", len(proj.Series)-proj.Historical),
				zap.String("reason", proj.Reason))
			report.Diverged = append(report.Diverged, apperr.Skip{Name: proj.Scenario, Reason: proj.Reason})
		}
		report.Projections[proj.Scenario] = proj
	}

	p.logger.Info("projection complete",
		zap.Int("scenarios", len(report.Projections)),
		zap.Int("diverged", len(report.Diverged)),
		zap.Int("horizon", horizon))
	return report, nil
}

// simulate steps one scenario forward. Adjusted rates are recomputed from
// the baseline at every step and never compound.
func simulate(series timeseries.Series, b Baseline, s Scenario, horizon int) Projection {
	proj := Projection{
		Scenario:   s.Name,
		Historical: len(series),
		Series:     make(timeseries.Series, len(series), len(series)+horizon),
	}
	copy(proj.Series, series)

	last := series.Last()
	population := last.Value
	migration := s.Value(MigrationRate)

	for t := 1; t <= horizon; t++ {
		birth := b.BirthRate * (1 + s.Value(BirthRateChange))
		death := b.DeathRate * (1 + s.Value(DeathRateChange))
		if s.Has(EducationImprovement) {
			birth *= 1 - 0.1*s.Value(EducationImprovement)
		}
		if s.Has(HealthcareImprovement) {
			death *= 1 - 0.15*s.Value(HealthcareImprovement)
		}

		natural := population * (birth - death) / 1000
		netMigration := population * migration / 1000
		next := population + natural + netMigration

		if next < 0 || math.IsNaN(next) || math.IsInf(next, 0) {
			proj.Diverged = true
			proj.Reason = fmt.Sprintf("%v at period %d: population %v", apperr.ErrDivergence, last.Period+t, next)
			return proj
		}
		population = next
		proj.Series = append(proj.Series, timeseries.Observation{Period: last.Period + t, Value: population})
	}
	return proj
}

func checkBaseline(b Baseline) error {
	for name, v := range map[string]float64{
		"birth rate":     b.BirthRate,
		"death rate":     b.DeathRate,
		"migration rate": b.MigrationRate,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: baseline %s is not finite", apperr.ErrInvalidInput, name)
		}
	}
	return nil
}

// withBusinessAsUsual validates the scenarios, rejects duplicate names and
// prepends the baseline scenario when missing
func withBusinessAsUsual(scenarios []Scenario, b Baseline) ([]Scenario, error) {
	seen := make(map[string]bool, len(scenarios))
	for _, s := range scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("%w: duplicate scenario %q", apperr.ErrInvalidInput, s.Name)
		}
		seen[s.Name] = true
	}
	if seen[BusinessAsUsual] {
		return scenarios, nil
	}
	return append([]Scenario{DefaultScenarios(b)[0]}, scenarios...), nil
}
