package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kartoza/decision-forecast/internal/config"
	"github.com/kartoza/decision-forecast/internal/models"
	"github.com/kartoza/decision-forecast/internal/scenario"
	"github.com/kartoza/decision-forecast/internal/telemetry"
)

var (
	projectInput     string
	projectScenarios string
	projectEntity    string
	projectSave      bool
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project population under alternative scenarios",
	Long: "Reads period,population rows (with optional birth_rate, death_rate and migration_rate " +
		"columns), simulates each scenario and prints the projections as JSON. Without --scenarios " +
		"the default five-scenario catalogue is used.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		in, err := openInput(projectInput)
		if err != nil {
			return err
		}
		defer in.Close()
		data, err := readProjection(in)
		if err != nil {
			return err
		}

		baseline := scenario.BaselineFrom(data.Birth, data.Death, data.Migration)
		scenarios := scenario.DefaultScenarios(baseline)
		if projectScenarios != "" {
			f, err := os.Open(projectScenarios)
			if err != nil {
				return err
			}
			defer f.Close()
			if scenarios, err = scenario.LoadScenarios(f); err != nil {
				return err
			}
		}

		projector := scenario.NewProjector(logger.Named("scenario"), cfg.Workers)
		report, err := projector.Project(cmd.Context(), data.Population, baseline, scenarios, cfg.ProjectionHorizon)
		if err != nil {
			return err
		}

		resp := models.ProjectResponse{Entity: projectEntity, Report: report}
		if projectSave {
			runs, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer runs.Close()
			run, err := runs.Create(cmd.Context(), telemetry.KindProjection, projectEntity, resp)
			if err != nil {
				return err
			}
			resp.RunID = run.ID
		}

		return writeJSON(cmd.OutOrStdout(), resp)
	},
}

func init() {
	projectCmd.Flags().StringVarP(&projectInput, "input", "i", "", "CSV file with period,population columns, or - for stdin (required)")
	projectCmd.Flags().Int("horizon", 30, "Periods to project")
	projectCmd.Flags().StringVar(&projectScenarios, "scenarios", "", "YAML scenario catalogue")
	projectCmd.Flags().StringVar(&projectEntity, "entity", "", "Entity name recorded with the run")
	projectCmd.Flags().BoolVar(&projectSave, "save", false, "Store the projection in the run database")
	cobra.CheckErr(viper.BindPFlag(config.KeyProjectionHorizon, projectCmd.Flags().Lookup("horizon")))
}
