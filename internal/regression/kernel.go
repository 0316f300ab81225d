package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// KernelRidge is kernel ridge regression with an RBF kernel
// k(a, b) = exp(-gamma·||a - b||²). It fills the kernel slot of the panel.
type KernelRidge struct {
	gamma  float64
	lambda float64
	train  [][]float64
	dual   []float64
	yMean  float64
}

// NewKernelRidge creates a kernel ridge regressor
func NewKernelRidge(gamma, lambda float64) *KernelRidge {
	return &KernelRidge{gamma: gamma, lambda: lambda}
}

func (m *KernelRidge) Name() string { return NameKernelRidge }

func (m *KernelRidge) Fit(X mat.Matrix, y []float64) error {
	n, _, err := checkFit(X, y)
	if err != nil {
		return err
	}
	rows := rowsOf(X)
	yMean := mean(y)

	gram := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := m.kernel(rows[i], rows[j])
			if i == j {
				v += m.lambda
			}
			gram.SetSym(i, j, v)
		}
	}

	centred := make([]float64, n)
	for i, v := range y {
		centred[i] = v - yMean
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return fmt.Errorf("kernel matrix is not positive definite")
	}
	var dual mat.VecDense
	if err := chol.SolveVecTo(&dual, mat.NewVecDense(n, centred)); err != nil {
		return fmt.Errorf("kernel ridge solve: %w", err)
	}

	m.train = rows
	m.dual = dual.RawVector().Data
	m.yMean = yMean
	return nil
}

func (m *KernelRidge) Predict(X mat.Matrix) ([]float64, error) {
	features := 0
	if len(m.train) > 0 {
		features = len(m.train[0])
	}
	n, err := checkPredict(X, m.train != nil, features)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i, row := range rowsOf(X) {
		v := m.yMean
		for k, tr := range m.train {
			v += m.dual[k] * m.kernel(row, tr)
		}
		out[i] = v
	}
	return out, nil
}

func (m *KernelRidge) kernel(a, b []float64) float64 {
	d := 0.0
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return math.Exp(-m.gamma * d)
}
