// Package apperr defines the error taxonomy shared by the forecasting engine.
//
// Call-level errors are sentinels wrapped with fmt.Errorf("context: %w", err)
// and surface immediately to the caller:
//
//	ErrInvalidInput        malformed input (bad horizon, shapes, missing features).
//	ErrInsufficientData    the series is too short for the requested operation.
//	ErrForecastUnavailable every forecasting method failed.
//	ErrMismatchedHorizon   forecasts handed to the combiner disagree on periods.
//	ErrNoForecasts         the combiner received nothing to combine.
//	ErrNotFound            an unknown stored ID.
//
// Task-level errors (one algorithm, method or scenario) never abort a batch.
// They are carried as *FitError and reported next to the partial result as Skip
// entries.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientData    = errors.New("insufficient data")
	ErrForecastUnavailable = errors.New("forecast unavailable")
	ErrMismatchedHorizon   = errors.New("mismatched horizon")
	ErrNoForecasts         = errors.New("no forecasts to combine")
	ErrDivergence          = errors.New("scenario diverged")
	ErrNotFitted           = errors.New("model not fitted")
	ErrNotConverged        = errors.New("did not converge")
	ErrNotFound            = errors.New("not found")
)

// FitError records the failure of a single algorithm, method or scenario.
type FitError struct {
	Name string
	Err  error
}

func (e *FitError) Error() string { return fmt.Sprintf("%s: %v", e.Name, e.Err) }

func (e *FitError) Unwrap() error { return e.Err }

// Fit wraps err as a FitError for the named task. A nil err returns nil.
func Fit(name string, err error) error {
	if err == nil {
		return nil
	}
	return &FitError{Name: name, Err: err}
}

// Recovered converts a recovered panic value into a FitError.
func Recovered(name string, r any) error {
	if err, ok := r.(error); ok {
		return &FitError{Name: name, Err: fmt.Errorf("panic: %w", err)}
	}
	return &FitError{Name: name, Err: fmt.Errorf("panic: %v", r)}
}

// Skip is the structured marker returned alongside partial results for an
// entry that was skipped or diverged.
type Skip struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// SkipOf builds a Skip from an error, unwrapping a FitError name when present.
func SkipOf(name string, err error) Skip {
	var fe *FitError
	if errors.As(err, &fe) {
		return Skip{Name: fe.Name, Reason: fe.Err.Error()}
	}
	return Skip{Name: name, Reason: err.Error()}
}
