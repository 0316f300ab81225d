package regression

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/nn"
)

// MLP adapts the two-hidden-layer network in package nn to the panel
type MLP struct {
	seed  int64
	model *nn.Regressor
}

// NewMLP creates a network regressor sized at fit time
func NewMLP(seed int64) *MLP { return &MLP{seed: seed} }

// LoadMLP restores a fitted network written by Save
func LoadMLP(path string) (*MLP, error) {
	model, err := nn.New(nn.DefaultConfig(1))
	if err != nil {
		return nil, err
	}
	if err := model.Load(path); err != nil {
		return nil, fmt.Errorf("failed to load network: %w", err)
	}
	if !model.IsTrained() {
		return nil, fmt.Errorf("network %s: %w", path, apperr.ErrNotFitted)
	}
	return &MLP{model: model}, nil
}

func (m *MLP) Name() string { return NameMLP }

func (m *MLP) Fit(X mat.Matrix, y []float64) error {
	_, p, err := checkFit(X, y)
	if err != nil {
		return err
	}
	cfg := nn.DefaultConfig(p)
	cfg.Seed = m.seed
	model, err := nn.New(cfg)
	if err != nil {
		return fmt.Errorf("create network: %w", err)
	}
	if err := model.Train(rowsOf(X), y); err != nil {
		return fmt.Errorf("train network: %w", err)
	}
	m.model = model
	return nil
}

func (m *MLP) Predict(X mat.Matrix) ([]float64, error) {
	if m.model == nil || !m.model.IsTrained() {
		return nil, apperr.ErrNotFitted
	}
	return m.model.Predict(rowsOf(X))
}

// Describe reports the architecture and the final-epoch training loss
func (m *MLP) Describe() map[string]interface{} {
	if m.model == nil {
		return nil
	}
	out := m.model.GetConfig()
	out["loss"] = m.model.Loss()
	return out
}

// InputDim returns the number of features the network expects
func (m *MLP) InputDim() int {
	if m.model == nil {
		return 0
	}
	dim, _ := m.model.GetConfig()["input_dim"].(int)
	return dim
}

// Save writes the fitted network to path
func (m *MLP) Save(path string) error {
	if m.model == nil || !m.model.IsTrained() {
		return apperr.ErrNotFitted
	}
	if err := m.model.Save(path); err != nil {
		return fmt.Errorf("failed to save network: %w", err)
	}
	return nil
}
