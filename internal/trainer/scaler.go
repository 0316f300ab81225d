package trainer

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes columns to zero mean and unit variance. It is fitted
// once on a training partition and never mutated afterwards.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes column means and population standard deviations.
// Constant columns get a unit scale.
func FitScaler(X mat.Matrix) *Scaler {
	n, p := X.Dims()
	s := &Scaler{Mean: make([]float64, p), Std: make([]float64, p)}
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, X)
		m, v := stat.PopMeanVariance(col, nil)
		s.Mean[j] = m
		s.Std[j] = math.Sqrt(v)
		if s.Std[j] == 0 || math.IsNaN(s.Std[j]) {
			s.Std[j] = 1
		}
	}
	return s
}

// Transform returns a standardized copy of X
func (s *Scaler) Transform(X mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Std[j]
	}, X)
	return &out
}

// TransformRow standardizes a single row in place
func (s *Scaler) TransformRow(row []float64) {
	for j := range row {
		row[j] = (row[j] - s.Mean[j]) / s.Std[j]
	}
}
