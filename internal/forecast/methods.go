package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kartoza/decision-forecast/internal/timeseries"
)

// Method names
const (
	MethodLogLinear            = "log_linear"
	MethodExponentialSmoothing = "exponential_smoothing"
	MethodARIMA                = "arima"
	MethodGrowthRate           = "growth_rate"
	MethodLinearTrend          = "linear_trend"
)

// MethodNames lists the default methods in run order
var MethodNames = []string{
	MethodLogLinear,
	MethodExponentialSmoothing,
	MethodARIMA,
	MethodGrowthRate,
	MethodLinearTrend,
}

// Method is one independent forecasting technique. Implementations fill
// Values and optionally Interval; the forecaster sets Method and Start.
type Method interface {
	Name() string
	Forecast(series timeseries.Series, horizon int, level float64) (Result, error)
}

// DefaultMethods returns every built-in method
func DefaultMethods() []Method {
	return []Method{LogLinear{}, Holt{}, ARIMA{}, GrowthRate{}, LinearTrend{}}
}

// LogLinear fits log(value) = a + b·period and extrapolates exp(a + b·period)
type LogLinear struct{}

func (LogLinear) Name() string { return MethodLogLinear }

func (LogLinear) Forecast(series timeseries.Series, horizon int, _ float64) (Result, error) {
	x := make([]float64, len(series))
	y := make([]float64, len(series))
	for i, o := range series {
		if o.Value <= 0 {
			return Result{}, fmt.Errorf("non-positive value %v at period %d", o.Value, o.Period)
		}
		x[i] = float64(o.Period)
		y[i] = math.Log(o.Value)
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)

	last := series.Last().Period
	values := make([]float64, horizon)
	for i := range values {
		values[i] = math.Exp(alpha + beta*float64(last+1+i))
	}
	return Result{Values: values}, nil
}

// GrowthRate compounds the mean period-over-period percentage change
type GrowthRate struct{}

func (GrowthRate) Name() string { return MethodGrowthRate }

func (GrowthRate) Forecast(series timeseries.Series, horizon int, _ float64) (Result, error) {
	values := series.Values()
	changes := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			return Result{}, fmt.Errorf("zero value at period %d", series[i-1].Period)
		}
		changes = append(changes, (values[i]-values[i-1])/values[i-1])
	}
	if len(changes) == 0 {
		return Result{}, fmt.Errorf("need at least two observations")
	}
	growth := stat.Mean(changes, nil)

	last := values[len(values)-1]
	out := make([]float64, horizon)
	for i := range out {
		out[i] = last * math.Pow(1+growth, float64(i+1))
	}
	return Result{Values: out}, nil
}

// LinearTrend fits value = a + b·position by least squares, with a band of
// ± z·std(residuals)
type LinearTrend struct{}

func (LinearTrend) Name() string { return MethodLinearTrend }

func (LinearTrend) Forecast(series timeseries.Series, horizon int, level float64) (Result, error) {
	n := len(series)
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	y := series.Values()
	alpha, beta := stat.LinearRegression(x, y, nil, false)

	residuals := make([]float64, n)
	for i := range residuals {
		residuals[i] = y[i] - (alpha + beta*x[i])
	}
	_, variance := stat.PopMeanVariance(residuals, nil)
	half := zScore(level) * math.Sqrt(variance)

	values := make([]float64, horizon)
	lower := make([]float64, horizon)
	upper := make([]float64, horizon)
	for i := range values {
		values[i] = alpha + beta*float64(n+i)
		lower[i] = values[i] - half
		upper[i] = values[i] + half
	}
	return Result{Values: values, Interval: &Interval{Level: level, Lower: lower, Upper: upper}}, nil
}

// Holt is additive-trend exponential smoothing. The smoothing weights are
// chosen by Nelder-Mead on the one-step-ahead squared error.
type Holt struct{}

func (Holt) Name() string { return MethodExponentialSmoothing }

func (Holt) Forecast(series timeseries.Series, horizon int, _ float64) (Result, error) {
	y := series.Values()
	if len(y) < 3 {
		return Result{}, fmt.Errorf("need at least three observations")
	}

	sse := func(x []float64) float64 {
		_, _, s := holtFilter(y, logistic(x[0]), logistic(x[1]))
		return s
	}
	x, err := minimize(sse, []float64{0, logit(0.1)})
	if err != nil {
		return Result{}, fmt.Errorf("fit smoothing parameters: %w", err)
	}

	level, trend, _ := holtFilter(y, logistic(x[0]), logistic(x[1]))
	values := make([]float64, horizon)
	for h := range values {
		values[h] = level + float64(h+1)*trend
	}
	return Result{Values: values}, nil
}

// holtFilter runs the smoothing recursions and returns the final level,
// trend and one-step squared error
func holtFilter(y []float64, alpha, beta float64) (float64, float64, float64) {
	level, trend := y[0], y[1]-y[0]
	sse := 0.0
	for t := 1; t < len(y); t++ {
		e := y[t] - (level + trend)
		sse += e * e
		prev := level
		level = alpha*y[t] + (1-alpha)*(level+trend)
		trend = beta*(level-prev) + (1-beta)*trend
	}
	return level, trend, sse
}

// ARIMA is an ARIMA(1,1,1) model with drift fitted by conditional sum of
// squares. The band comes from the psi-weight forecast variance.
type ARIMA struct{}

func (ARIMA) Name() string { return MethodARIMA }

func (ARIMA) Forecast(series timeseries.Series, horizon int, level float64) (Result, error) {
	y := series.Values()
	if len(y) < 4 {
		return Result{}, fmt.Errorf("need at least four observations")
	}
	d := make([]float64, len(y)-1)
	for i := range d {
		d[i] = y[i+1] - y[i]
	}
	mean, variance := stat.MeanVariance(d, nil)
	scale := math.Sqrt(variance)
	if scale == 0 || math.IsNaN(scale) {
		scale = 1
	}

	params := func(x []float64) (phi, theta, mu float64) {
		return math.Tanh(x[0]), math.Tanh(x[1]), mean + scale*x[2]
	}
	css := func(x []float64) float64 {
		phi, theta, mu := params(x)
		_, s := arimaResiduals(d, phi, theta, mu)
		return s
	}
	x, err := minimize(css, []float64{0.1, 0.1, 0})
	if err != nil {
		return Result{}, fmt.Errorf("fit arima(1,1,1): %w", err)
	}

	phi, theta, mu := params(x)
	lastErr, sse := arimaResiduals(d, phi, theta, mu)
	sigma2 := sse / float64(len(d)-1)

	// differenced forecasts, integrated back onto the last level
	values := make([]float64, horizon)
	prevD := d[len(d)-1]
	current := y[len(y)-1]
	for h := range values {
		next := mu + phi*(prevD-mu)
		if h == 0 {
			next += theta * lastErr
		}
		current += next
		values[h] = current
		prevD = next
	}

	z := zScore(level)
	lower := make([]float64, horizon)
	upper := make([]float64, horizon)
	psi, cumPsi, sumSq := 1.0, 0.0, 0.0
	for h := range values {
		if h > 0 {
			psi = math.Pow(phi, float64(h-1)) * (phi + theta)
		}
		cumPsi += psi
		sumSq += cumPsi * cumPsi
		half := z * math.Sqrt(sigma2*sumSq)
		lower[h] = values[h] - half
		upper[h] = values[h] + half
	}
	return Result{Values: values, Interval: &Interval{Level: level, Lower: lower, Upper: upper}}, nil
}

// arimaResiduals returns the final innovation and the conditional sum of
// squares of an ARMA(1,1) on the differenced series
func arimaResiduals(d []float64, phi, theta, mu float64) (float64, float64) {
	prevErr, sse := 0.0, 0.0
	for t := 1; t < len(d); t++ {
		e := (d[t] - mu) - phi*(d[t-1]-mu) - theta*prevErr
		sse += e * e
		prevErr = e
	}
	return prevErr, sse
}

// minimize runs Nelder-Mead and accepts the best point found even when an
// evaluation limit stops the search
func minimize(f func([]float64) float64, x0 []float64) ([]float64, error) {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			v := f(x)
			if math.IsNaN(v) {
				return math.Inf(1)
			}
			return v
		},
	}
	settings := &optimize.Settings{FuncEvaluations: 4000}
	res, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if res == nil || math.IsInf(res.F, 0) || math.IsNaN(res.F) {
		if err == nil {
			err = fmt.Errorf("no finite objective value")
		}
		return nil, err
	}
	for _, v := range res.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite parameters")
		}
	}
	return res.X, nil
}

func zScore(level float64) float64 {
	if !(level > 0 && level < 1) {
		level = 0.95
	}
	return distuv.UnitNormal.Quantile(0.5 + level/2)
}

func logistic(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func logit(p float64) float64 { return math.Log(p / (1 - p)) }
