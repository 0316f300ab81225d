// Package scoring implements the error metrics shared by the trainer and the
// evaluator. All functions expect equal-length, non-empty inputs and return
// NaN otherwise.
package scoring

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// MSE returns the mean squared error
func MSE(actual, predicted []float64) float64 {
	if !sameLength(actual, predicted) {
		return math.NaN()
	}
	sum := 0.0
	for i := range actual {
		d := actual[i] - predicted[i]
		sum += d * d
	}
	return sum / float64(len(actual))
}

// RMSE returns the root mean squared error
func RMSE(actual, predicted []float64) float64 {
	return math.Sqrt(MSE(actual, predicted))
}

// MAE returns the mean absolute error
func MAE(actual, predicted []float64) float64 {
	if !sameLength(actual, predicted) {
		return math.NaN()
	}
	sum := 0.0
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual))
}

// R2 returns the coefficient of determination. A constant actual series
// scores 1 for a perfect prediction and 0 otherwise.
func R2(actual, predicted []float64) float64 {
	if !sameLength(actual, predicted) {
		return math.NaN()
	}
	mean := stat.Mean(actual, nil)
	ssRes, ssTot := 0.0, 0.0
	for i := range actual {
		r := actual[i] - predicted[i]
		d := actual[i] - mean
		ssRes += r * r
		ssTot += d * d
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// MAPE returns the mean absolute percentage error in percent. Denominators
// are clamped to a magnitude of at least 1.
func MAPE(actual, predicted []float64) float64 {
	if !sameLength(actual, predicted) {
		return math.NaN()
	}
	sum := 0.0
	for i := range actual {
		sum += math.Abs(actual[i]-predicted[i]) / math.Max(math.Abs(actual[i]), 1)
	}
	return sum / float64(len(actual)) * 100
}

// Finite reports whether every value is a finite number
func Finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func sameLength(a, b []float64) bool {
	return len(a) > 0 && len(a) == len(b)
}
