package scenario

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/timeseries"
)

func history() timeseries.Series {
	values := make([]float64, 10)
	for i := range values {
		values[i] = 100 + 2*float64(i)
	}
	return timeseries.FromValues(2000, values...)
}

func TestProjectConcreteScenario(t *testing.T) {
	p := NewProjector(nil, 2)
	baseline := Baseline{BirthRate: 20, DeathRate: 8}
	flat := Scenario{Name: "flat", Adjustments: map[string]float64{
		BirthRateChange: 0, DeathRateChange: 0, MigrationRate: 0,
	}}

	report, err := p.Project(context.Background(), history(), baseline, []Scenario{flat}, 3)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	proj := report.Projections["flat"]
	if len(proj.Series) != 13 || proj.Historical != 10 {
		t.Fatalf("expected 10 historical + 3 simulated, got %d/%d", proj.Historical, len(proj.Series))
	}

	want := []struct {
		period int
		value  float64
	}{
		{2010, 119.416},
		{2011, 120.848992},
		{2012, 122.299179904},
	}
	for i, w := range want {
		got := proj.Simulated()[i]
		if got.Period != w.period || math.Abs(got.Value-w.value) > 1e-9 {
			t.Errorf("step %d: expected (%d, %v), got (%d, %v)", i, w.period, w.value, got.Period, got.Value)
		}
	}
	if proj.Series[9].Value != 118 {
		t.Errorf("expected history preserved, got %v", proj.Series[9])
	}
}

func TestBusinessAsUsualClosedForm(t *testing.T) {
	baseline := Baseline{BirthRate: 14.2, DeathRate: 9.7}
	report, err := NewProjector(nil, 1).Project(context.Background(), history(), baseline, nil, 25)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	proj, ok := report.Projections[BusinessAsUsual]
	if !ok {
		t.Fatalf("expected business_as_usual to be added, got %v", report.Names())
	}

	factor := 1 + (14.2-9.7)/1000
	prev := 118.0
	for _, o := range proj.Simulated() {
		if math.Abs(o.Value-prev*factor) > 1e-9 {
			t.Fatalf("period %d: expected %v, got %v", o.Period, prev*factor, o.Value)
		}
		prev = o.Value
	}
}

func TestRatesDoNotCompound(t *testing.T) {
	baseline := Baseline{BirthRate: 10, DeathRate: 10}
	s := Scenario{Name: "boost", Adjustments: map[string]float64{BirthRateChange: 0.5}}
	report, err := NewProjector(nil, 1).Project(context.Background(), timeseries.FromValues(1, 1000), baseline, []Scenario{s}, 3)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	// births 15‰ against deaths 10‰ each step
	sim := report.Projections["boost"].Simulated()
	for i, want := range []float64{1005, 1010.025, 1015.075125} {
		if math.Abs(sim[i].Value-want) > 1e-9 {
			t.Errorf("step %d: expected %v, got %v", i, want, sim[i].Value)
		}
	}
}

func TestImprovementTerms(t *testing.T) {
	baseline := Baseline{BirthRate: 20, DeathRate: 10}
	s := Scenario{Name: "sd", Adjustments: map[string]float64{
		EducationImprovement: 0.5, HealthcareImprovement: 1,
	}}
	report, err := NewProjector(nil, 1).Project(context.Background(), timeseries.FromValues(1, 1000), baseline, []Scenario{s}, 1)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	// birth 20·0.95 = 19, death 10·0.85 = 8.5
	got := report.Projections["sd"].Simulated()[0].Value
	if math.Abs(got-1010.5) > 1e-9 {
		t.Errorf("expected 1010.5, got %v", got)
	}
}

func TestDivergenceIsContained(t *testing.T) {
	baseline := Baseline{BirthRate: 10, DeathRate: 10}
	collapse := Scenario{Name: "collapse", Adjustments: map[string]float64{MigrationRate: -1500}}
	steady := Scenario{Name: "steady", Adjustments: map[string]float64{}}

	report, err := NewProjector(nil, 2).Project(context.Background(), history(), baseline, []Scenario{collapse, steady}, 5)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}

	c := report.Projections["collapse"]
	if !c.Diverged || c.Reason == "" {
		t.Fatalf("expected collapse to diverge, got %+v", c)
	}
	if len(c.Simulated()) != 0 {
		t.Errorf("expected no simulated values after immediate divergence, got %v", c.Simulated())
	}
	if !strings.Contains(c.Reason, "2010") {
		t.Errorf("expected reason to name the failing period, got %q", c.Reason)
	}
	if len(report.Diverged) != 1 || report.Diverged[0].Name != "collapse" {
		t.Errorf("expected one divergence marker, got %v", report.Diverged)
	}

	s := report.Projections["steady"]
	if s.Diverged || len(s.Simulated()) != 5 {
		t.Errorf("expected steady scenario unaffected, got %+v", s)
	}
}

func TestProjectPreconditions(t *testing.T) {
	p := NewProjector(nil, 1)
	b := Baseline{BirthRate: 10, DeathRate: 8}
	tests := []struct {
		name      string
		series    timeseries.Series
		scenarios []Scenario
		horizon   int
		want      error
	}{
		{"empty series", nil, nil, 5, apperr.ErrInsufficientData},
		{"zero horizon", history(), nil, 0, apperr.ErrInvalidInput},
		{"duplicate", history(), []Scenario{{Name: "a"}, {Name: "a"}}, 5, apperr.ErrInvalidInput},
		{"bad improvement", history(), []Scenario{{Name: "a", Adjustments: map[string]float64{EducationImprovement: 2}}}, 5, apperr.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Project(context.Background(), tt.series, b, tt.scenarios, tt.horizon); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBaselineFrom(t *testing.T) {
	b := BaselineFrom(nil, nil, nil)
	if b.BirthRate != DefaultBirthRate || b.DeathRate != DefaultDeathRate || b.HasMigration {
		t.Errorf("expected defaults, got %+v", b)
	}

	b = BaselineFrom(
		timeseries.FromValues(2000, 22, 21, 19.5),
		timeseries.FromValues(2000, 9, 8.5),
		timeseries.FromValues(2000, 1, 2, 3),
	)
	if b.BirthRate != 19.5 || b.DeathRate != 8.5 || b.MigrationRate != 2 || !b.HasMigration {
		t.Errorf("unexpected baseline %+v", b)
	}
}

func TestDefaultScenarios(t *testing.T) {
	with := DefaultScenarios(Baseline{MigrationRate: 2, HasMigration: true})
	without := DefaultScenarios(Baseline{})

	if len(with) != 5 {
		t.Fatalf("expected 5 scenarios, got %d", len(with))
	}
	if with[0].Name != BusinessAsUsual {
		t.Errorf("expected business_as_usual first, got %s", with[0].Name)
	}
	if with[1].Value(MigrationRate) != 3 || with[2].Value(MigrationRate) != 1 {
		t.Errorf("expected scaled migration 3 and 1, got %v %v", with[1].Value(MigrationRate), with[2].Value(MigrationRate))
	}
	if without[1].Value(MigrationRate) != 0.1 || without[2].Value(MigrationRate) != -0.1 {
		t.Errorf("expected fallback migration ±0.1, got %v %v", without[1].Value(MigrationRate), without[2].Value(MigrationRate))
	}
	sd := with[4]
	if !sd.Has(EducationImprovement) || sd.Value(HealthcareImprovement) != 0.3 {
		t.Errorf("unexpected sustainable_development adjustments %v", sd.Adjustments)
	}
}

func TestLoadScenarios(t *testing.T) {
	doc := `
scenarios:
  high_growth:
    birth_rate_change: 0.1
    migration_rate: 3
    colour: green
  austerity:
    death_rate_change: 0.02
`
	got, err := LoadScenarios(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadScenarios failed: %v", err)
	}
	if len(got) != 2 || got[0].Name != "austerity" || got[1].Name != "high_growth" {
		t.Fatalf("unexpected scenarios %+v", got)
	}
	if got[1].Value(MigrationRate) != 3 || got[1].Value(BirthRateChange) != 0.1 {
		t.Errorf("unexpected adjustments %v", got[1].Adjustments)
	}
	if got[1].Has("colour") {
		t.Error("expected unrecognized key to be ignored")
	}
}

func TestLoadScenariosRejectsNonNumeric(t *testing.T) {
	doc := "scenarios:\n  bad:\n    birth_rate_change: lots\n"
	if _, err := LoadScenarios(strings.NewReader(doc)); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCompare(t *testing.T) {
	baseline := Baseline{BirthRate: 20, DeathRate: 8}
	report, err := NewProjector(nil, 2).Project(context.Background(), history(), baseline, DefaultScenarios(baseline), 4)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}

	cmp, err := Compare(report.Projections[BusinessAsUsual], report.Projections[HighGrowth])
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if len(cmp.Periods) != 4 || cmp.Periods[0].Period != 2010 {
		t.Fatalf("expected 4 periods from 2010, got %+v", cmp.Periods)
	}
	for _, d := range cmp.Periods {
		if d.Difference <= 0 {
			t.Errorf("expected high growth above baseline in %d, got %v", d.Period, d.Difference)
		}
	}

	diverged := Projection{Scenario: "x", Historical: 10, Series: history()}
	if _, err := Compare(report.Projections[BusinessAsUsual], diverged); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for no shared periods, got %v", err)
	}
}

func TestReportNames(t *testing.T) {
	r := &Report{Projections: map[string]Projection{
		"zeta": {}, BusinessAsUsual: {}, "alpha": {},
	}}
	names := r.Names()
	if names[0] != BusinessAsUsual || names[1] != "alpha" || names[2] != "zeta" {
		t.Errorf("unexpected order %v", names)
	}
}
