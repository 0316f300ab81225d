package trainer

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/kartoza/decision-forecast/internal/apperr"
)

// FeatureRow is one cross-sectional observation and its target
type FeatureRow struct {
	Features map[string]float64 `json:"features"`
	Target   float64            `json:"target"`
}

// FeatureMatrix is a rectangular set of rows sharing the same feature names.
// Columns fixes the column order; when empty it is the sorted feature names
// of the first row.
type FeatureMatrix struct {
	Columns []string     `json:"columns,omitempty"`
	Rows    []FeatureRow `json:"rows"`
}

// ColumnNames returns the column order used to build design matrices
func (fm FeatureMatrix) ColumnNames() []string {
	if len(fm.Columns) > 0 {
		return append([]string(nil), fm.Columns...)
	}
	if len(fm.Rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(fm.Rows[0].Features))
	for name := range fm.Rows[0].Features {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	return cols
}

// Validate rejects missing, extra and non-finite features. Missing values
// are never imputed.
func (fm FeatureMatrix) Validate() error {
	if len(fm.Rows) == 0 {
		return fmt.Errorf("%w: feature matrix has no rows", apperr.ErrInvalidInput)
	}
	cols := fm.ColumnNames()
	if len(cols) == 0 {
		return fmt.Errorf("%w: feature matrix has no columns", apperr.ErrInvalidInput)
	}
	for i, row := range fm.Rows {
		for _, name := range cols {
			v, ok := row.Features[name]
			if !ok {
				return fmt.Errorf("%w: row %d is missing feature %q", apperr.ErrInvalidInput, i, name)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: row %d feature %q is not finite", apperr.ErrInvalidInput, i, name)
			}
		}
		if len(row.Features) != len(cols) {
			return fmt.Errorf("%w: row %d has %d features, expected %d", apperr.ErrInvalidInput, i, len(row.Features), len(cols))
		}
		if math.IsNaN(row.Target) || math.IsInf(row.Target, 0) {
			return fmt.Errorf("%w: row %d target is not finite", apperr.ErrInvalidInput, i)
		}
	}
	return nil
}

// Targets returns the target column
func (fm FeatureMatrix) Targets() []float64 {
	out := make([]float64, len(fm.Rows))
	for i, row := range fm.Rows {
		out[i] = row.Target
	}
	return out
}

// design builds the raw design matrix and targets for rows [from, to)
func (fm FeatureMatrix) design(cols []string, from, to int) (*mat.Dense, []float64) {
	X := mat.NewDense(to-from, len(cols), nil)
	y := make([]float64, to-from)
	for i := from; i < to; i++ {
		for j, name := range cols {
			X.Set(i-from, j, fm.Rows[i].Features[name])
		}
		y[i-from] = fm.Rows[i].Target
	}
	return X, y
}
