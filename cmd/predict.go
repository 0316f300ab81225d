package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kartoza/decision-forecast/internal/models"
	"github.com/kartoza/decision-forecast/internal/trainer"
)

var (
	predictModel string
	predictInput string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Score a CSV table with an exported network",
	Long: "Loads a network written by train --export and prints one prediction per CSV row. " +
		"Every column the network was trained on must be present.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if predictModel == "" {
			return errors.New("--model is required")
		}
		_, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		model, err := trainer.LoadNetwork(predictModel)
		if err != nil {
			return err
		}

		in, err := openInput(predictInput)
		if err != nil {
			return err
		}
		defer in.Close()
		rows, err := readRows(in)
		if err != nil {
			return err
		}

		resp := models.PredictResponse{Model: model.Name, Predictions: make([]float64, len(rows))}
		for i, row := range rows {
			if resp.Predictions[i], err = model.Predict(row); err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
		}
		logger.Debug("predictions complete", zap.String("model", predictModel), zap.Int("rows", len(rows)))
		return writeJSON(cmd.OutOrStdout(), resp)
	},
}

func init() {
	predictCmd.Flags().StringVar(&predictModel, "model", "", "Directory written by train --export (required)")
	predictCmd.Flags().StringVarP(&predictInput, "input", "i", "", "CSV file of feature columns, or - for stdin (required)")
}
