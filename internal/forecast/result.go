package forecast

import (
	"fmt"
	"slices"
	"sort"

	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/scoring"
	"github.com/kartoza/decision-forecast/internal/timeseries"
)

// Interval is a lower/upper confidence band aligned with a forecast vector
type Interval struct {
	Level float64   `json:"level"`
	Lower []float64 `json:"lower"`
	Upper []float64 `json:"upper"`
}

// MeanWidth returns the average upper-lower distance
func (iv *Interval) MeanWidth() float64 {
	if iv == nil || len(iv.Lower) == 0 || len(iv.Lower) != len(iv.Upper) {
		return 0
	}
	total := 0.0
	for i := range iv.Lower {
		total += iv.Upper[i] - iv.Lower[i]
	}
	return total / float64(len(iv.Lower))
}

// Result is the output of one forecasting method. Values[i] is the forecast
// for period Start+i.
type Result struct {
	Method   string    `json:"method"`
	Start    int       `json:"start"`
	Values   []float64 `json:"values"`
	Interval *Interval `json:"interval,omitempty"`
}

// Horizon returns the number of forecast periods
func (r Result) Horizon() int { return len(r.Values) }

// Series returns the forecast as a series
func (r Result) Series() timeseries.Series {
	return timeseries.FromValues(r.Start, r.Values...)
}

// check enforces the exact-horizon and finite-value contract
func (r Result) check(horizon int) error {
	if len(r.Values) != horizon {
		return fmt.Errorf("%w: produced %d values for horizon %d", apperr.ErrInvalidInput, len(r.Values), horizon)
	}
	if !scoring.Finite(r.Values) {
		return fmt.Errorf("non-finite forecast values")
	}
	if iv := r.Interval; iv != nil {
		if len(iv.Lower) != horizon || len(iv.Upper) != horizon {
			return fmt.Errorf("%w: interval length does not match horizon %d", apperr.ErrInvalidInput, horizon)
		}
		if !scoring.Finite(iv.Lower) || !scoring.Finite(iv.Upper) {
			return fmt.Errorf("non-finite interval bounds")
		}
	}
	return nil
}

// Report collects the successful results of one Forecast call and the
// methods that were skipped.
type Report struct {
	Start   int               `json:"start"`
	Horizon int               `json:"horizon"`
	Results map[string]Result `json:"results"`
	Skipped []apperr.Skip     `json:"skipped"`
}

// Methods returns the names of the successful methods in a stable order
func (r *Report) Methods() []string {
	var out []string
	for _, name := range MethodNames {
		if _, ok := r.Results[name]; ok {
			out = append(out, name)
		}
	}
	var extra []string
	for name := range r.Results {
		if !slices.Contains(MethodNames, name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
