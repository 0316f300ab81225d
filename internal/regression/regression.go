// Package regression implements the fixed panel of regression algorithms
// fitted by the trainer. Every algorithm works on an already standardized
// design matrix and is independent of the others.
package regression

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/kartoza/decision-forecast/internal/apperr"
)

// Algorithm names of the default panel
const (
	NameLinear           = "LinearRegression"
	NameRidge            = "Ridge"
	NameLasso            = "Lasso"
	NameRandomForest     = "RandomForest"
	NameGradientBoosting = "GradientBoosting"
	NameKernelRidge      = "KernelRidge"
	NameMLP              = "MLP"
)

// Regressor is a single regression algorithm
type Regressor interface {
	Name() string
	Fit(X mat.Matrix, y []float64) error
	Predict(X mat.Matrix) ([]float64, error)
}

// Importancer is implemented by algorithms that rank their input features.
// Importances are aligned with the design matrix columns and sum to 1.
type Importancer interface {
	FeatureImportances() []float64
}

// Describer is implemented by algorithms that report details of their fit
type Describer interface {
	Describe() map[string]interface{}
}

// Factory creates a fresh, unfitted regressor
type Factory func() Regressor

// DefaultPanel returns factories for the full algorithm panel
func DefaultPanel(seed int64) []Factory {
	return []Factory{
		func() Regressor { return NewLinearRegression() },
		func() Regressor { return NewRidge(1.0) },
		func() Regressor { return NewLasso(0.1) },
		func() Regressor { return NewRandomForest(100, seed) },
		func() Regressor { return NewGradientBoosting(100, 0.1, 3) },
		func() Regressor { return NewKernelRidge(0.1, 0.01) },
		func() Regressor { return NewMLP(seed) },
	}
}

// checkFit validates the shapes handed to Fit
func checkFit(X mat.Matrix, y []float64) (int, int, error) {
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return 0, 0, fmt.Errorf("%w: empty design matrix", apperr.ErrInvalidInput)
	}
	if n != len(y) {
		return 0, 0, fmt.Errorf("%w: %d rows for %d targets", apperr.ErrInvalidInput, n, len(y))
	}
	return n, p, nil
}

// checkPredict validates the column count handed to Predict
func checkPredict(X mat.Matrix, fitted bool, features int) (int, error) {
	if !fitted {
		return 0, apperr.ErrNotFitted
	}
	n, p := X.Dims()
	if p != features {
		return 0, fmt.Errorf("%w: %d columns, model was fitted on %d", apperr.ErrInvalidInput, p, features)
	}
	return n, nil
}

// rowsOf copies a matrix into row slices
func rowsOf(X mat.Matrix) [][]float64 {
	n, p := X.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, p)
		for j := range rows[i] {
			rows[i][j] = X.At(i, j)
		}
	}
	return rows
}

// columnMeans returns the mean of every column
func columnMeans(X mat.Matrix) []float64 {
	n, p := X.Dims()
	means := make([]float64, p)
	for j := 0; j < p; j++ {
		for i := 0; i < n; i++ {
			means[j] += X.At(i, j)
		}
		means[j] /= float64(n)
	}
	return means
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	total := 0.0
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		return out
	}
	for i, v := range values {
		out[i] = v / total
	}
	return out
}
