// Package ensemble merges forecasts of identical horizon into one consensus
// series.
package ensemble

import (
	"fmt"
	"math"
	"sort"

	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/forecast"
)

// Rule selects how constituent forecasts are combined
type Rule string

const (
	SimpleAverage   Rule = "simple_average"
	WeightedAverage Rule = "weighted_average"
	Median          Rule = "median"
)

// Rules lists the supported combination rules
var Rules = []Rule{SimpleAverage, WeightedAverage, Median}

// ParseRule validates a rule name
func ParseRule(name string) (Rule, error) {
	for _, r := range Rules {
		if string(r) == name {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: unknown combination rule %q", apperr.ErrInvalidInput, name)
}

// Forecast is the consensus series and the weight each method contributed
type Forecast struct {
	Rule    Rule               `json:"rule"`
	Start   int                `json:"start"`
	Values  []float64          `json:"values"`
	Methods []string           `json:"methods"`
	Weights map[string]float64 `json:"weights"`
}

// Combine merges forecasts under rule. All inputs must share the same start
// period and horizon.
func Combine(forecasts map[string]forecast.Result, rule Rule) (Forecast, error) {
	if len(forecasts) == 0 {
		return Forecast{}, apperr.ErrNoForecasts
	}
	if _, err := ParseRule(string(rule)); err != nil {
		return Forecast{}, err
	}

	methods := make([]string, 0, len(forecasts))
	for name := range forecasts {
		methods = append(methods, name)
	}
	sort.Strings(methods)

	first := forecasts[methods[0]]
	horizon := first.Horizon()
	if horizon == 0 {
		return Forecast{}, fmt.Errorf("%w: %s has no values", apperr.ErrMismatchedHorizon, methods[0])
	}
	for _, name := range methods[1:] {
		f := forecasts[name]
		if f.Horizon() != horizon || f.Start != first.Start {
			return Forecast{}, fmt.Errorf("%w: %s covers %d periods from %d, %s covers %d from %d",
				apperr.ErrMismatchedHorizon, methods[0], horizon, first.Start, name, f.Horizon(), f.Start)
		}
	}

	weights := make([]float64, len(methods))
	switch rule {
	case WeightedAverage:
		weights = inverseWidthWeights(forecasts, methods)
	default:
		for i := range weights {
			weights[i] = 1 / float64(len(methods))
		}
	}

	values := make([]float64, horizon)
	column := make([]float64, len(methods))
	for h := range values {
		for i, name := range methods {
			column[i] = forecasts[name].Values[h]
		}
		if rule == Median {
			values[h] = median(column)
			continue
		}
		for i, v := range column {
			values[h] += weights[i] * v
		}
	}

	out := Forecast{
		Rule:    rule,
		Start:   first.Start,
		Values:  values,
		Methods: methods,
		Weights: make(map[string]float64, len(methods)),
	}
	for i, name := range methods {
		out.Weights[name] = weights[i]
	}
	return out, nil
}

// inverseWidthWeights weights each forecast by 1/mean interval width.
// Forecasts without a usable interval get unit weight before normalizing.
func inverseWidthWeights(forecasts map[string]forecast.Result, methods []string) []float64 {
	weights := make([]float64, len(methods))
	total := 0.0
	for i, name := range methods {
		weights[i] = 1
		if iv := forecasts[name].Interval; iv != nil {
			width := iv.MeanWidth()
			if width > 0 && !math.IsInf(width, 0) && !math.IsNaN(width) {
				weights[i] = 1 / width
			}
		}
		total += weights[i]
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

// median of an even count is the mean of the two middle values
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
