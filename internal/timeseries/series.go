package timeseries

import (
	"fmt"
	"math"

	"github.com/kartoza/decision-forecast/internal/apperr"
)

// Observation is a single (period, value) pair. Period is an ordinal such as a year.
type Observation struct {
	Period int     `json:"period"`
	Value  float64 `json:"value"`
}

// Series is an ordered sequence of observations for one entity
type Series []Observation

// FromValues builds a series with consecutive periods starting at start
func FromValues(start int, values ...float64) Series {
	s := make(Series, len(values))
	for i, v := range values {
		s[i] = Observation{Period: start + i, Value: v}
	}
	return s
}

// Validate checks that periods are strictly increasing and values are finite
func (s Series) Validate() error {
	for i, o := range s {
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			return fmt.Errorf("%w: non-finite value at period %d", apperr.ErrInvalidInput, o.Period)
		}
		if i > 0 && o.Period <= s[i-1].Period {
			return fmt.Errorf("%w: period %d does not follow %d", apperr.ErrInvalidInput, o.Period, s[i-1].Period)
		}
	}
	return nil
}

// Values returns the observation values in order
func (s Series) Values() []float64 {
	values := make([]float64, len(s))
	for i, o := range s {
		values[i] = o.Value
	}
	return values
}

// Periods returns the observation periods in order
func (s Series) Periods() []int {
	periods := make([]int, len(s))
	for i, o := range s {
		periods[i] = o.Period
	}
	return periods
}

// Last returns the final observation. It panics on an empty series.
func (s Series) Last() Observation { return s[len(s)-1] }

// Mean returns the arithmetic mean of the values, or 0 for an empty series
func (s Series) Mean() float64 {
	if len(s) == 0 {
		return 0
	}
	sum := 0.0
	for _, o := range s {
		sum += o.Value
	}
	return sum / float64(len(s))
}

// Clone returns an independent copy of the series
func (s Series) Clone() Series {
	out := make(Series, len(s))
	copy(out, s)
	return out
}
