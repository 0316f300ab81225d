package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/timeseries"
	"github.com/kartoza/decision-forecast/internal/trainer"
)

// openInput opens a file, or stdin for "-"
func openInput(path string) (io.ReadCloser, error) {
	if path == "" {
		return nil, errors.New("--input is required")
	}
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}

// table is a CSV file with a header row
type table struct {
	columns map[string]int
	header  []string
	rows    [][]string
}

func readTable(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty input", apperr.ErrInvalidInput)
	}

	t := &table{columns: make(map[string]int), rows: records[1:]}
	for i, name := range records[0] {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := t.columns[name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", apperr.ErrInvalidInput, name)
		}
		t.columns[name] = i
		t.header = append(t.header, name)
	}
	return t, nil
}

func (t *table) require(names ...string) error {
	for _, name := range names {
		if _, ok := t.columns[name]; !ok {
			return fmt.Errorf("%w: missing column %q", apperr.ErrInvalidInput, name)
		}
	}
	return nil
}

// cell returns the trimmed value of a column; missing columns read as empty
func (t *table) cell(row []string, name string) string {
	i, ok := t.columns[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *table) number(line int, row []string, name string) (float64, error) {
	raw := t.cell(row, name)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: line %d column %s: %q is not a number", apperr.ErrInvalidInput, line, name, raw)
	}
	return v, nil
}

func (t *table) period(line int, row []string) (int, error) {
	raw := t.cell(row, "period")
	p, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: line %d: period %q is not an integer", apperr.ErrInvalidInput, line, raw)
	}
	return p, nil
}

// readSeries reads period,value rows with an optional entity column and
// returns one series per entity, ordered by period
func readSeries(r io.Reader) (map[string]timeseries.Series, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if err := t.require("period", "value"); err != nil {
		return nil, err
	}

	out := make(map[string]timeseries.Series)
	for i, row := range t.rows {
		line := i + 2
		period, err := t.period(line, row)
		if err != nil {
			return nil, err
		}
		value, err := t.number(line, row, "value")
		if err != nil {
			return nil, err
		}
		entity := t.cell(row, "entity")
		out[entity] = append(out[entity], timeseries.Observation{Period: period, Value: value})
	}
	for entity, s := range out {
		sort.SliceStable(s, func(a, b int) bool { return s[a].Period < s[b].Period })
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("entity %q: %w", entity, err)
		}
	}
	return out, nil
}

// projectionInput is a population history with optional rate histories
type projectionInput struct {
	Population timeseries.Series
	Birth      timeseries.Series
	Death      timeseries.Series
	Migration  timeseries.Series
}

// readProjection reads period,population rows with optional birth_rate,
// death_rate and migration_rate columns; blank rate cells are skipped
func readProjection(r io.Reader) (*projectionInput, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if err := t.require("period", "population"); err != nil {
		return nil, err
	}

	in := &projectionInput{}
	rates := map[string]*timeseries.Series{
		"birth_rate":     &in.Birth,
		"death_rate":     &in.Death,
		"migration_rate": &in.Migration,
	}
	for i, row := range t.rows {
		line := i + 2
		period, err := t.period(line, row)
		if err != nil {
			return nil, err
		}
		population, err := t.number(line, row, "population")
		if err != nil {
			return nil, err
		}
		in.Population = append(in.Population, timeseries.Observation{Period: period, Value: population})

		for name, target := range rates {
			if t.cell(row, name) == "" {
				continue
			}
			v, err := t.number(line, row, name)
			if err != nil {
				return nil, err
			}
			*target = append(*target, timeseries.Observation{Period: period, Value: v})
		}
	}

	for _, s := range []*timeseries.Series{&in.Population, &in.Birth, &in.Death, &in.Migration} {
		series := *s
		sort.SliceStable(series, func(a, b int) bool { return series[a].Period < series[b].Period })
		if err := series.Validate(); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// readFeatures reads a numeric table; the target column becomes the row
// target and every other column a feature
func readFeatures(r io.Reader, target string) (trainer.FeatureMatrix, error) {
	target = strings.ToLower(strings.TrimSpace(target))
	t, err := readTable(r)
	if err != nil {
		return trainer.FeatureMatrix{}, err
	}
	if err := t.require(target); err != nil {
		return trainer.FeatureMatrix{}, err
	}

	var columns []string
	for _, name := range t.header {
		if name != target {
			columns = append(columns, name)
		}
	}
	if len(columns) == 0 {
		return trainer.FeatureMatrix{}, fmt.Errorf("%w: no feature columns besides %q", apperr.ErrInvalidInput, target)
	}

	fm := trainer.FeatureMatrix{Columns: columns, Rows: make([]trainer.FeatureRow, 0, len(t.rows))}
	for i, row := range t.rows {
		line := i + 2
		y, err := t.number(line, row, target)
		if err != nil {
			return trainer.FeatureMatrix{}, err
		}
		features := make(map[string]float64, len(columns))
		for _, name := range columns {
			v, err := t.number(line, row, name)
			if err != nil {
				return trainer.FeatureMatrix{}, err
			}
			features[name] = v
		}
		fm.Rows = append(fm.Rows, trainer.FeatureRow{Features: features, Target: y})
	}
	return fm, nil
}

// readRows reads a numeric table as one feature map per row
func readRows(r io.Reader) ([]map[string]float64, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]float64, 0, len(t.rows))
	for i, row := range t.rows {
		line := i + 2
		features := make(map[string]float64, len(t.header))
		for _, name := range t.header {
			v, err := t.number(line, row, name)
			if err != nil {
				return nil, err
			}
			features[name] = v
		}
		rows = append(rows, features)
	}
	return rows, nil
}
