package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/kartoza/decision-forecast/internal/apperr"
)

// LinearRegression is ordinary least squares with an intercept
type LinearRegression struct {
	coef      []float64
	intercept float64
	fitted    bool
}

// NewLinearRegression creates an OLS regressor
func NewLinearRegression() *LinearRegression { return &LinearRegression{} }

func (m *LinearRegression) Name() string { return NameLinear }

// Fit solves the least squares problem through a QR factorization.
// Ill-conditioned designs are reported as errors.
func (m *LinearRegression) Fit(X mat.Matrix, y []float64) error {
	n, p, err := checkFit(X, y)
	if err != nil {
		return err
	}
	if n < p+1 {
		return fmt.Errorf("%w: %d rows for %d coefficients", apperr.ErrInvalidInput, n, p+1)
	}

	a := mat.NewDense(n, p+1, nil)
	for i := 0; i < n; i++ {
		a.Set(i, 0, 1)
		for j := 0; j < p; j++ {
			a.Set(i, j+1, X.At(i, j))
		}
	}

	var beta mat.VecDense
	if err := beta.SolveVec(a, mat.NewVecDense(n, append([]float64(nil), y...))); err != nil {
		return fmt.Errorf("least squares: %w", err)
	}

	m.intercept = beta.AtVec(0)
	m.coef = make([]float64, p)
	for j := range m.coef {
		m.coef[j] = beta.AtVec(j + 1)
	}
	m.fitted = true
	return nil
}

func (m *LinearRegression) Predict(X mat.Matrix) ([]float64, error) {
	return predictLinear(X, m.fitted, m.coef, m.intercept)
}

// Coefficients returns the fitted slopes
func (m *LinearRegression) Coefficients() []float64 { return append([]float64(nil), m.coef...) }

// Ridge is L2-penalized least squares minimizing ||y - Xw||² + alpha·||w||²
type Ridge struct {
	alpha     float64
	coef      []float64
	intercept float64
	fitted    bool
}

// NewRidge creates a ridge regressor
func NewRidge(alpha float64) *Ridge { return &Ridge{alpha: alpha} }

func (m *Ridge) Name() string { return NameRidge }

// Fit solves the normal equations on centred data with a Cholesky factorization
func (m *Ridge) Fit(X mat.Matrix, y []float64) error {
	n, p, err := checkFit(X, y)
	if err != nil {
		return err
	}

	xc, yc, xMean, yMean := center(X, y)

	var gram mat.SymDense
	gram.SymOuterK(1, xc.T())
	for j := 0; j < p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+m.alpha)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return fmt.Errorf("ridge normal equations are not positive definite")
	}

	rhs := mat.NewVecDense(p, nil)
	rhs.MulVec(xc.T(), mat.NewVecDense(n, yc))

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, rhs); err != nil {
		return fmt.Errorf("ridge solve: %w", err)
	}

	m.coef = make([]float64, p)
	m.intercept = yMean
	for j := range m.coef {
		m.coef[j] = beta.AtVec(j)
		m.intercept -= xMean[j] * m.coef[j]
	}
	m.fitted = true
	return nil
}

func (m *Ridge) Predict(X mat.Matrix) ([]float64, error) {
	return predictLinear(X, m.fitted, m.coef, m.intercept)
}

// Coefficients returns the fitted slopes
func (m *Ridge) Coefficients() []float64 { return append([]float64(nil), m.coef...) }

// Lasso is L1-penalized least squares minimizing
// (1/2n)·||y - Xw||² + alpha·||w||₁ by cyclic coordinate descent.
type Lasso struct {
	alpha     float64
	tol       float64
	maxIter   int
	coef      []float64
	intercept float64
	fitted    bool
}

// NewLasso creates a lasso regressor
func NewLasso(alpha float64) *Lasso {
	return &Lasso{alpha: alpha, tol: 1e-4, maxIter: 10000}
}

func (m *Lasso) Name() string { return NameLasso }

func (m *Lasso) Fit(X mat.Matrix, y []float64) error {
	n, p, err := checkFit(X, y)
	if err != nil {
		return err
	}

	xc, yc, xMean, yMean := center(X, y)

	colNorm := make([]float64, p)
	for j := 0; j < p; j++ {
		for i := 0; i < n; i++ {
			v := xc.At(i, j)
			colNorm[j] += v * v
		}
	}

	w := make([]float64, p)
	residual := append([]float64(nil), yc...)
	threshold := float64(n) * m.alpha

	converged := false
	for iter := 0; iter < m.maxIter; iter++ {
		maxDelta, maxW := 0.0, 0.0
		for j := 0; j < p; j++ {
			if colNorm[j] == 0 {
				continue
			}
			old := w[j]
			rho := colNorm[j] * old
			for i := 0; i < n; i++ {
				rho += xc.At(i, j) * residual[i]
			}
			w[j] = softThreshold(rho, threshold) / colNorm[j]
			if d := w[j] - old; d != 0 {
				for i := 0; i < n; i++ {
					residual[i] -= xc.At(i, j) * d
				}
				maxDelta = math.Max(maxDelta, math.Abs(d))
			}
			maxW = math.Max(maxW, math.Abs(w[j]))
		}
		if maxW == 0 || maxDelta/maxW < m.tol {
			converged = true
			break
		}
	}
	if !converged {
		return fmt.Errorf("lasso after %d sweeps: %w", m.maxIter, apperr.ErrNotConverged)
	}

	m.coef = w
	m.intercept = yMean
	for j := range w {
		m.intercept -= xMean[j] * w[j]
	}
	m.fitted = true
	return nil
}

func (m *Lasso) Predict(X mat.Matrix) ([]float64, error) {
	return predictLinear(X, m.fitted, m.coef, m.intercept)
}

// Coefficients returns the fitted slopes
func (m *Lasso) Coefficients() []float64 { return append([]float64(nil), m.coef...) }

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	default:
		return 0
	}
}

// center subtracts column and target means
func center(X mat.Matrix, y []float64) (*mat.Dense, []float64, []float64, float64) {
	n, p := X.Dims()
	xMean := columnMeans(X)
	yMean := mean(y)

	xc := mat.NewDense(n, p, nil)
	xc.Apply(func(i, j int, _ float64) float64 { return X.At(i, j) - xMean[j] }, X)

	yc := make([]float64, n)
	for i, v := range y {
		yc[i] = v - yMean
	}
	return xc, yc, xMean, yMean
}

func predictLinear(X mat.Matrix, fitted bool, coef []float64, intercept float64) ([]float64, error) {
	n, err := checkPredict(X, fitted, len(coef))
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		v := intercept
		for j, c := range coef {
			v += c * X.At(i, j)
		}
		out[i] = v
	}
	return out, nil
}
