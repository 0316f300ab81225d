package cmd

import (
	"errors"
	"strings"
	"testing"

	"github.com/kartoza/decision-forecast/internal/apperr"
)

func TestReadSeries(t *testing.T) {
	input := `entity, period, value
ZA, 2001, 11
ZA, 2000, 10
KE, 2000, 5
KE, 2001, 6
`
	series, err := readSeries(strings.NewReader(input))
	if err != nil {
		t.Fatalf("readSeries failed: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("Expected 2 entities, got %d", len(series))
	}
	za := series["ZA"]
	if za[0].Period != 2000 || za[0].Value != 10 || za[1].Value != 11 {
		t.Errorf("Expected ZA sorted by period, got %+v", za)
	}

	single, err := readSeries(strings.NewReader("period,value\n1,2\n2,3\n"))
	if err != nil {
		t.Fatalf("readSeries failed: %v", err)
	}
	if len(single[""]) != 2 {
		t.Errorf("Expected one unnamed series of 2, got %+v", single)
	}
}

func TestReadSeriesErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing value column", "period\n2000\n"},
		{"bad period", "period,value\nabc,1\n"},
		{"bad value", "period,value\n2000,x\n"},
		{"duplicate period", "period,value\n2000,1\n2000,2\n"},
		{"duplicate column", "period,value,value\n2000,1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readSeries(strings.NewReader(tt.input))
			if !errors.Is(err, apperr.ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestReadProjection(t *testing.T) {
	input := `period,population,birth_rate,death_rate,migration_rate
2000,1000,20,9,
2001,1011,19,9,1
2002,1022,,,3
`
	in, err := readProjection(strings.NewReader(input))
	if err != nil {
		t.Fatalf("readProjection failed: %v", err)
	}
	if len(in.Population) != 3 || len(in.Birth) != 2 || len(in.Death) != 2 || len(in.Migration) != 2 {
		t.Fatalf("Unexpected lengths: %+v", in)
	}
	if in.Migration.Mean() != 2 {
		t.Errorf("Expected mean migration 2, got %v", in.Migration.Mean())
	}
	if in.Birth.Last().Value != 19 {
		t.Errorf("Expected last birth rate 19, got %v", in.Birth.Last().Value)
	}

	if _, err := readProjection(strings.NewReader("period,value\n1,2\n")); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for a missing population column, got %v", err)
	}
}

func TestReadFeatures(t *testing.T) {
	input := `gdp,urban,Life
1,2,60
2,3,62
`
	fm, err := readFeatures(strings.NewReader(input), "life")
	if err != nil {
		t.Fatalf("readFeatures failed: %v", err)
	}
	if len(fm.Columns) != 2 || fm.Columns[0] != "gdp" || fm.Columns[1] != "urban" {
		t.Errorf("Expected columns [gdp urban], got %v", fm.Columns)
	}
	if fm.Rows[1].Target != 62 || fm.Rows[1].Features["urban"] != 3 {
		t.Errorf("Unexpected row: %+v", fm.Rows[1])
	}
	if err := fm.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}

	tests := []struct {
		name   string
		input  string
		target string
	}{
		{"missing target", "gdp,urban\n1,2\n", "life"},
		{"target only", "life\n1\n", "life"},
		{"non-numeric feature", "gdp,life\nhigh,60\n", "life"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := readFeatures(strings.NewReader(tt.input), tt.target); !errors.Is(err, apperr.ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestOpenInputRequiresPath(t *testing.T) {
	if _, err := openInput(""); err == nil {
		t.Error("Expected an error for an empty path")
	}
	if _, err := openInput("/does/not/exist.csv"); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestReadRows(t *testing.T) {
	rows, err := readRows(strings.NewReader("GDP,urban\n1,2\n3,4\n"))
	if err != nil {
		t.Fatalf("readRows failed: %v", err)
	}
	if len(rows) != 2 || rows[1]["gdp"] != 3 || rows[1]["urban"] != 4 {
		t.Errorf("Unexpected rows %v", rows)
	}
	if _, err := readRows(strings.NewReader("gdp\nx\n")); err == nil {
		t.Error("Expected an error for a non-numeric cell")
	}
}
