package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kartoza/decision-forecast/internal/apperr"
	"github.com/kartoza/decision-forecast/internal/config"
	"github.com/kartoza/decision-forecast/internal/ensemble"
	"github.com/kartoza/decision-forecast/internal/forecast"
	"github.com/kartoza/decision-forecast/internal/models"
	"github.com/kartoza/decision-forecast/internal/store"
	"github.com/kartoza/decision-forecast/internal/telemetry"
)

var (
	forecastInput string
	forecastRule  string
	forecastSave  bool
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast every series in a CSV file",
	Long: "Reads period,value rows (with an optional entity column), runs every forecasting " +
		"method on each entity and prints the results as JSON. Entities that cannot be " +
		"forecast are listed under failed with the reason.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		var rule ensemble.Rule
		if forecastRule != "" {
			if rule, err = ensemble.ParseRule(forecastRule); err != nil {
				return err
			}
		}

		in, err := openInput(forecastInput)
		if err != nil {
			return err
		}
		defer in.Close()
		series, err := readSeries(in)
		if err != nil {
			return err
		}

		var runs *store.Store
		if forecastSave {
			if runs, err = openStore(cmd.Context(), cfg); err != nil {
				return err
			}
			defer runs.Close()
		}

		forecaster := forecast.New(forecast.Config{
			MinObservations: cfg.MinObservations,
			ConfidenceLevel: cfg.ConfidenceLevel,
			Workers:         cfg.Workers,
		}, logger.Named("forecast"))

		entities := make([]string, 0, len(series))
		for entity := range series {
			entities = append(entities, entity)
		}
		sort.Strings(entities)

		batch := models.ForecastBatch{
			Forecasts: make([]models.ForecastResponse, 0, len(entities)),
			Failed:    []apperr.Skip{},
		}
		for _, entity := range entities {
			report, err := forecaster.Forecast(cmd.Context(), series[entity], cfg.ForecastHorizon)
			if err != nil {
				logger.Warn("forecast failed", zap.String("entity", entity), zap.Error(err))
				batch.Failed = append(batch.Failed, apperr.Skip{Name: entity, Reason: err.Error()})
				continue
			}
			resp := models.ForecastResponse{Entity: entity, Forecast: report}
			if rule != "" {
				combined, err := ensemble.Combine(report.Results, rule)
				if err != nil {
					return fmt.Errorf("entity %q: %w", entity, err)
				}
				resp.Ensemble = &combined
			}
			if runs != nil {
				run, err := runs.Create(cmd.Context(), telemetry.KindForecast, entity, resp)
				if err != nil {
					return err
				}
				resp.RunID = run.ID
			}
			batch.Forecasts = append(batch.Forecasts, resp)
		}
		if len(batch.Forecasts) == 0 {
			reasons := make([]string, len(batch.Failed))
			for i, f := range batch.Failed {
				reasons[i] = fmt.Sprintf("%q: %s", f.Name, f.Reason)
			}
			return fmt.Errorf("no entity could be forecast: %s", strings.Join(reasons, "; "))
		}

		return writeJSON(cmd.OutOrStdout(), batch)
	},
}

func init() {
	forecastCmd.Flags().StringVarP(&forecastInput, "input", "i", "", "CSV file with period,value columns, or - for stdin (required)")
	forecastCmd.Flags().Int("horizon", 20, "Periods to forecast")
	forecastCmd.Flags().StringVar(&forecastRule, "rule", "", "Also combine the methods (simple_average|weighted_average|median)")
	forecastCmd.Flags().BoolVar(&forecastSave, "save", false, "Store each forecast in the run database")
	cobra.CheckErr(viper.BindPFlag(config.KeyForecastHorizon, forecastCmd.Flags().Lookup("horizon")))
}
