package scenario

import (
	"fmt"

	"github.com/kartoza/decision-forecast/internal/apperr"
)

// PeriodDifference is the gap between two scenarios in one period
type PeriodDifference struct {
	Period     int     `json:"period"`
	Left       float64 `json:"left"`
	Right      float64 `json:"right"`
	Difference float64 `json:"difference"`
	Percent    float64 `json:"percent"`
}

// Comparison contrasts the simulated periods of two projections
type Comparison struct {
	Left    string             `json:"left"`
	Right   string             `json:"right"`
	Periods []PeriodDifference `json:"periods"`
}

// Compare pairs the simulated periods both projections reached. Difference
// is right minus left; Percent is relative to left.
func Compare(left, right Projection) (Comparison, error) {
	rightByPeriod := make(map[int]float64)
	for _, o := range right.Simulated() {
		rightByPeriod[o.Period] = o.Value
	}

	cmp := Comparison{Left: left.Scenario, Right: right.Scenario, Periods: []PeriodDifference{}}
	for _, o := range left.Simulated() {
		r, ok := rightByPeriod[o.Period]
		if !ok {
			continue
		}
		d := PeriodDifference{Period: o.Period, Left: o.Value, Right: r, Difference: r - o.Value}
		if o.Value != 0 {
			d.Percent = d.Difference / o.Value * 100
		}
		cmp.Periods = append(cmp.Periods, d)
	}
	if len(cmp.Periods) == 0 {
		return cmp, fmt.Errorf("%w: %s and %s share no simulated periods", apperr.ErrInvalidInput, left.Scenario, right.Scenario)
	}
	return cmp, nil
}
