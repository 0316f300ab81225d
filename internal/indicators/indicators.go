// Package indicators projects demographic indicators along a straight-line
// trend, clipped to plausible ranges.
package indicators

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/timeseries"
)

// Indicator names with known bounds
const (
	BirthRate      = "birth_rate"
	DeathRate      = "death_rate"
	LifeExpectancy = "life_expectancy"
	FertilityRate  = "fertility_rate"
	MedianAge      = "median_age"
)

// Bounds is an inclusive clipping range
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clip limits v to the range
func (b Bounds) Clip(v float64) float64 {
	return math.Max(b.Min, math.Min(b.Max, v))
}

// DefaultBounds are applied to the matching indicators
var DefaultBounds = map[string]Bounds{
	FertilityRate:  {Min: 1, Max: 8},
	LifeExpectancy: {Min: 40, Max: 100},
	MedianAge:      {Min: 15, Max: 60},
}

// Projection holds the projected values of every indicator that had
// enough history, aligned on periods Start..Start+Horizon-1
type Projection struct {
	Start      int                  `json:"start"`
	Horizon    int                  `json:"horizon"`
	Indicators map[string][]float64 `json:"indicators"`
	Skipped    []apperr.Skip        `json:"skipped"`
}

// Project fits value = a + b·period to each indicator and extrapolates it
// from the period after the latest observation of any indicator.
// Indicators with fewer than two observations are skipped.
func Project(history map[string]timeseries.Series, horizon int) (*Projection, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("%w: horizon must be positive, got %d", apperr.ErrInvalidInput, horizon)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: no indicators supplied", apperr.ErrInsufficientData)
	}

	names := make([]string, 0, len(history))
	last := math.MinInt
	for name, s := range history {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("indicator %s: %w", name, err)
		}
		if len(s) > 0 && s.Last().Period > last {
			last = s.Last().Period
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if last == math.MinInt {
		return nil, fmt.Errorf("%w: every indicator is empty", apperr.ErrInsufficientData)
	}

	out := &Projection{
		Start:      last + 1,
		Horizon:    horizon,
		Indicators: make(map[string][]float64),
		Skipped:    []apperr.Skip{},
	}
	for _, name := range names {
		s := history[name]
		if len(s) < 2 {
			out.Skipped = append(out.Skipped, apperr.Skip{
				Name:   name,
				Reason: fmt.Sprintf("need at least 2 observations, got %d", len(s)),
			})
			continue
		}

		x := make([]float64, len(s))
		for i, p := range s.Periods() {
			x[i] = float64(p)
		}
		alpha, beta := stat.LinearRegression(x, s.Values(), nil, false)

		bounds, clip := DefaultBounds[name]
		values := make([]float64, horizon)
		for h := range values {
			v := alpha + beta*float64(out.Start+h)
			if clip {
				v = bounds.Clip(v)
			}
			values[h] = v
		}
		out.Indicators[name] = values
	}
	return out, nil
}
