package apperr

import (
	"errors"
	"testing"
)

func TestFitErrorUnwrap(t *testing.T) {
	err := Fit("Lasso", ErrNotConverged)

	if !errors.Is(err, ErrNotConverged) {
		t.Error("FitError should unwrap to its cause")
	}
	if err.Error() != "Lasso: did not converge" {
		t.Errorf("Unexpected message %q", err.Error())
	}
	if Fit("Lasso", nil) != nil {
		t.Error("Fit with nil error should return nil")
	}
}

func TestSkipOf(t *testing.T) {
	skip := SkipOf("ignored", Fit("arima", errors.New("degenerate")))
	if skip.Name != "arima" || skip.Reason != "degenerate" {
		t.Errorf("Unexpected skip %+v", skip)
	}

	plain := SkipOf("growth_rate", errors.New("boom"))
	if plain.Name != "growth_rate" || plain.Reason != "boom" {
		t.Errorf("Unexpected skip %+v", plain)
	}
}

func TestRecovered(t *testing.T) {
	err := Recovered("MLP", "index out of range")
	var fe *FitError
	if !errors.As(err, &fe) || fe.Name != "MLP" {
		t.Fatalf("Expected FitError for MLP, got %v", err)
	}

	wrapped := Recovered("OLS", ErrNotFitted)
	if !errors.Is(wrapped, ErrNotFitted) {
		t.Error("Recovered error value should stay inspectable")
	}
}
