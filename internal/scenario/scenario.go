// Package scenario runs deterministic demographic projections for a set of
// named rate-adjustment scenarios.
package scenario

import (
	"fmt"
	"io"
	"math"
	"sort"

	"go.yaml.in/yaml/v3"

	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/timeseries"
)

// Recognized adjustment keys. Other keys are carried but ignored.
const (
	BirthRateChange       = "birth_rate_change"
	DeathRateChange       = "death_rate_change"
	MigrationRate         = "migration_rate"
	EducationImprovement  = "education_improvement"
	HealthcareImprovement = "healthcare_improvement"
)

// Default scenario names
const (
	BusinessAsUsual        = "business_as_usual"
	HighGrowth             = "high_growth"
	LowGrowth              = "low_growth"
	RapidAging             = "rapid_aging"
	SustainableDevelopment = "sustainable_development"
)

// Fallback per-mille rates when no history is available
const (
	DefaultBirthRate = 15.0
	DefaultDeathRate = 8.0
)

var recognized = map[string]bool{
	BirthRateChange:       true,
	DeathRateChange:       true,
	MigrationRate:         true,
	EducationImprovement:  true,
	HealthcareImprovement: true,
}

// Scenario is a named set of adjustments to the baseline rates
type Scenario struct {
	Name        string             `json:"name" yaml:"name"`
	Adjustments map[string]float64 `json:"adjustments" yaml:"adjustments"`
}

// Value returns an adjustment or 0 when it is absent
func (s Scenario) Value(key string) float64 {
	return s.Adjustments[key]
}

// Has reports whether an adjustment is present
func (s Scenario) Has(key string) bool {
	_, ok := s.Adjustments[key]
	return ok
}

// Validate rejects non-finite adjustments and improvement terms outside [0, 1]
func (s Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: scenario has no name", apperr.ErrInvalidInput)
	}
	for key, v := range s.Adjustments {
		if !recognized[key] {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: scenario %s adjustment %s is not finite", apperr.ErrInvalidInput, s.Name, key)
		}
		if (key == EducationImprovement || key == HealthcareImprovement) && (v < 0 || v > 1) {
			return fmt.Errorf("%w: scenario %s %s must be in [0, 1], got %v", apperr.ErrInvalidInput, s.Name, key, v)
		}
	}
	return nil
}

// Baseline holds the per-mille rates a projection starts from
type Baseline struct {
	BirthRate     float64 `json:"birth_rate"`
	DeathRate     float64 `json:"death_rate"`
	MigrationRate float64 `json:"migration_rate"`
	HasMigration  bool    `json:"has_migration"`
}

// BaselineFrom takes the last observed birth and death rates and the mean
// migration rate. Empty series fall back to the default rates.
func BaselineFrom(birth, death, migration timeseries.Series) Baseline {
	b := Baseline{BirthRate: DefaultBirthRate, DeathRate: DefaultDeathRate}
	if len(birth) > 0 {
		b.BirthRate = birth.Last().Value
	}
	if len(death) > 0 {
		b.DeathRate = death.Last().Value
	}
	if len(migration) > 0 {
		b.MigrationRate = migration.Mean()
		b.HasMigration = true
	}
	return b
}

// DefaultScenarios builds the standard five-scenario catalogue. Migration
// for the growth scenarios scales the historical mean when one exists.
func DefaultScenarios(b Baseline) []Scenario {
	high, low := 0.1, -0.1
	if b.HasMigration {
		high, low = b.MigrationRate*1.5, b.MigrationRate*0.5
	}
	return []Scenario{
		{Name: BusinessAsUsual, Adjustments: map[string]float64{
			BirthRateChange: 0, DeathRateChange: 0, MigrationRate: b.MigrationRate,
		}},
		{Name: HighGrowth, Adjustments: map[string]float64{
			BirthRateChange: 0.1, DeathRateChange: -0.05, MigrationRate: high,
		}},
		{Name: LowGrowth, Adjustments: map[string]float64{
			BirthRateChange: -0.1, DeathRateChange: 0.05, MigrationRate: low,
		}},
		{Name: RapidAging, Adjustments: map[string]float64{
			BirthRateChange: -0.2, DeathRateChange: -0.1, MigrationRate: 0,
		}},
		{Name: SustainableDevelopment, Adjustments: map[string]float64{
			BirthRateChange: -0.05, DeathRateChange: -0.1, MigrationRate: 0,
			EducationImprovement: 0.2, HealthcareImprovement: 0.3,
		}},
	}
}

// catalogue is the on-disk YAML layout:
//
//	scenarios:
//	  high_growth:
//	    birth_rate_change: 0.1
//	    migration_rate: 2.5
type catalogue struct {
	Scenarios map[string]map[string]interface{} `yaml:"scenarios"`
}

// LoadScenarios reads a YAML scenario catalogue. Unrecognized keys are
// ignored; recognized keys must be numeric.
func LoadScenarios(r io.Reader) ([]Scenario, error) {
	var c catalogue
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: failed to parse scenario catalogue: %v", apperr.ErrInvalidInput, err)
	}

	names := make([]string, 0, len(c.Scenarios))
	for name := range c.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Scenario, 0, len(names))
	for _, name := range names {
		s := Scenario{Name: name, Adjustments: map[string]float64{}}
		for key, raw := range c.Scenarios[name] {
			if !recognized[key] {
				continue
			}
			v, ok := number(raw)
			if !ok {
				return nil, fmt.Errorf("%w: scenario %s %s is not a number", apperr.ErrInvalidInput, name, key)
			}
			s.Adjustments[key] = v
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
