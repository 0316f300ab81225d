package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kartoza/decision-forecast/internal/models"
	"github.com/kartoza/decision-forecast/internal/scenario"
)

func execute(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--log-level", "error", "--data-dir", t.TempDir()))
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out.Bytes()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestProjectCommand(t *testing.T) {
	input := writeFile(t, "population.csv", "period,population,birth_rate,death_rate\n2000,1000,20,9\n2001,1011,20,9\n")
	catalogue := writeFile(t, "scenarios.yaml", "scenarios:\n  high_growth:\n    birth_rate_change: 0.1\n")

	out := execute(t, "project", "--input", input, "--horizon", "3", "--scenarios", catalogue, "--save", "--entity", "ZA")

	var resp models.ProjectResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("Unmarshal failed: %v\n%s", err, out)
	}
	if resp.RunID == "" {
		t.Error("Expected a stored run ID")
	}
	if len(resp.Report.Projections) != 2 {
		t.Fatalf("Expected high_growth plus business_as_usual, got %v", resp.Report.Names())
	}
	bau := resp.Report.Projections[scenario.BusinessAsUsual]
	if got := len(bau.Simulated()); got != 3 {
		t.Errorf("Expected 3 simulated periods, got %d", got)
	}
	if got := bau.Series[2].Value; math.Abs(got-1022.121) > 1e-9 {
		t.Errorf("Expected 1022.121 after one step, got %v", got)
	}
}

func TestForecastCommandListsFailedEntities(t *testing.T) {
	var b strings.Builder
	b.WriteString("entity,period,value\n")
	value := 1000.0
	for year := 2000; year < 2012; year++ {
		fmt.Fprintf(&b, "ZA,%d,%.4f\n", year, value)
		value *= 1.02
	}
	b.WriteString("LS,2000,50\nLS,2001,51\nLS,2002,52\n")
	input := writeFile(t, "series.csv", b.String())

	out := execute(t, "forecast", "--input", input, "--horizon", "3", "--rule", "median")

	var batch models.ForecastBatch
	if err := json.Unmarshal(out, &batch); err != nil {
		t.Fatalf("Unmarshal failed: %v\n%s", err, out)
	}
	if len(batch.Forecasts) != 1 || batch.Forecasts[0].Entity != "ZA" {
		t.Fatalf("Expected one forecast for ZA, got %+v", batch.Forecasts)
	}
	if batch.Forecasts[0].Ensemble == nil || len(batch.Forecasts[0].Ensemble.Values) != 3 {
		t.Errorf("Expected a 3-period median ensemble, got %+v", batch.Forecasts[0].Ensemble)
	}
	if len(batch.Failed) != 1 || batch.Failed[0].Name != "LS" {
		t.Fatalf("Expected LS listed as failed, got %+v", batch.Failed)
	}
	if !strings.Contains(batch.Failed[0].Reason, "insufficient") {
		t.Errorf("Expected an insufficient data reason, got %q", batch.Failed[0].Reason)
	}
}

func TestTrainExportAndPredict(t *testing.T) {
	var b strings.Builder
	b.WriteString("gdp,urban,population\n")
	for i := 0; i < 30; i++ {
		gdp, urban := float64(i), float64((i*3)%7)
		fmt.Fprintf(&b, "%g,%g,%g\n", gdp, urban, 100+5*gdp-2*urban)
	}
	input := writeFile(t, "features.csv", b.String())
	export := filepath.Join(t.TempDir(), "network")

	out := execute(t, "train", "--input", input, "--target", "population", "--export", export)
	var trained models.TrainResponse
	if err := json.Unmarshal(out, &trained); err != nil {
		t.Fatalf("Unmarshal failed: %v\n%s", err, out)
	}
	mlp, ok := trained.Session.Models["MLP"]
	if !ok {
		t.Fatalf("Expected a fitted MLP, skipped: %v", trained.Session.Skipped)
	}
	if _, ok := mlp.Details["loss"]; !ok {
		t.Errorf("Expected the training loss in the MLP details, got %v", mlp.Details)
	}

	rows := writeFile(t, "rows.csv", "urban,gdp\n3,10\n0,20\n")
	out = execute(t, "predict", "--model", export, "--input", rows)
	var resp models.PredictResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("Unmarshal failed: %v\n%s", err, out)
	}
	if resp.Model != "MLP" || len(resp.Predictions) != 2 {
		t.Fatalf("Expected 2 MLP predictions, got %+v", resp)
	}
	for i, p := range resp.Predictions {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			t.Errorf("Prediction %d is not finite: %v", i, p)
		}
	}
}

func TestFindAvailablePort(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer l.Close()
	busy := l.Addr().(*net.TCPAddr).Port

	port, err := findAvailablePort(busy, 5)
	if err != nil {
		t.Fatalf("findAvailablePort failed: %v", err)
	}
	if port == busy {
		t.Errorf("Expected a port other than the busy %d", busy)
	}
}
