package trainer

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/regression"
)

const (
	networkFile = "network.gob"
	layoutFile  = "network.yaml"
)

// networkLayout is the feature order and scaling a saved network expects
type networkLayout struct {
	Session string    `yaml:"session"`
	Columns []string  `yaml:"columns"`
	Mean    []float64 `yaml:"mean"`
	Std     []float64 `yaml:"std"`
}

// ExportNetwork writes the session's fitted MLP to dir: the weights go to
// network.gob and the column order and scaler to network.yaml.
func (s *Session) ExportNetwork(dir string) error {
	tm, ok := s.Models[regression.NameMLP]
	if !ok {
		return fmt.Errorf("session %s has no fitted %s: %w", s.ID, regression.NameMLP, apperr.ErrNotFound)
	}
	mlp, ok := tm.regressor.(*regression.MLP)
	if !ok {
		return fmt.Errorf("%w: %s is not a network", apperr.ErrInvalidInput, tm.Name)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := mlp.Save(filepath.Join(dir, networkFile)); err != nil {
		return err
	}

	data, err := yaml.Marshal(networkLayout{
		Session: s.ID,
		Columns: tm.columns,
		Mean:    tm.scaler.Mean,
		Std:     tm.scaler.Std,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal network layout: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, layoutFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write network layout: %w", err)
	}
	return nil
}

// LoadNetwork restores a model written by ExportNetwork. It predicts from
// raw features like any model of a live session.
func LoadNetwork(dir string) (*TrainedModel, error) {
	data, err := os.ReadFile(filepath.Join(dir, layoutFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("network in %s: %w", dir, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read network layout: %w", err)
	}
	var layout networkLayout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("%w: failed to parse network layout: %v", apperr.ErrInvalidInput, err)
	}
	n := len(layout.Columns)
	if n == 0 || len(layout.Mean) != n || len(layout.Std) != n {
		return nil, fmt.Errorf("%w: network layout has %d columns, %d means and %d scales",
			apperr.ErrInvalidInput, n, len(layout.Mean), len(layout.Std))
	}

	mlp, err := regression.LoadMLP(filepath.Join(dir, networkFile))
	if err != nil {
		return nil, err
	}
	if mlp.InputDim() != n {
		return nil, fmt.Errorf("%w: network expects %d inputs, layout lists %d columns",
			apperr.ErrInvalidInput, mlp.InputDim(), n)
	}

	return &TrainedModel{
		Name:      regression.NameMLP,
		Details:   mlp.Describe(),
		regressor: mlp,
		scaler:    &Scaler{Mean: layout.Mean, Std: layout.Std},
		columns:   layout.Columns,
	}, nil
}
