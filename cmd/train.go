package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kartoza/decision-forecast/internal/config"
	"github.com/kartoza/decision-forecast/internal/models"
	"github.com/kartoza/decision-forecast/internal/trainer"
)

var (
	trainInput  string
	trainTarget string
	trainExport string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit the regression panel on a CSV table",
	Long: "Reads a numeric CSV table, fits every regression algorithm to predict the target " +
		"column from the others and prints the session with holdout metrics as JSON. " +
		"With --export the fitted network is written out for the predict command.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if trainTarget == "" {
			return errors.New("--target is required")
		}
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		in, err := openInput(trainInput)
		if err != nil {
			return err
		}
		defer in.Close()
		fm, err := readFeatures(in, trainTarget)
		if err != nil {
			return err
		}

		t := trainer.New(logger.Named("trainer"), cfg.TrainingSeed, trainer.WithWorkers(cfg.Workers))
		session, err := t.Train(cmd.Context(), fm, cfg.HoldoutFraction)
		if err != nil {
			return err
		}
		if trainExport != "" {
			if err := session.ExportNetwork(trainExport); err != nil {
				return err
			}
			logger.Info("network exported", zap.String("dir", trainExport))
		}
		return writeJSON(cmd.OutOrStdout(), models.TrainResponse{Session: session})
	},
}

func init() {
	trainCmd.Flags().StringVarP(&trainInput, "input", "i", "", "CSV file, or - for stdin (required)")
	trainCmd.Flags().StringVar(&trainTarget, "target", "", "Target column (required)")
	trainCmd.Flags().Float64("holdout", 0.2, "Fraction of rows held out for scoring")
	trainCmd.Flags().StringVar(&trainExport, "export", "", "Write the fitted MLP to this directory for the predict command")
	trainCmd.Flags().Int64("seed", 42, "Seed for the randomized algorithms")
	cobra.CheckErr(viper.BindPFlag(config.KeyHoldoutFraction, trainCmd.Flags().Lookup("holdout")))
	cobra.CheckErr(viper.BindPFlag(config.KeyTrainingSeed, trainCmd.Flags().Lookup("seed")))
}
