package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kartoza/decision-forecast/internal/config"
	"github.com/kartoza/decision-forecast/internal/logging"
	"github.com/kartoza/decision-forecast/internal/store"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "decision-forecast",
	Short: "Forecasting and scenario projection engine",
	Long: "Trains regression panels on indicator data, forecasts time series with several " +
		"methods and an ensemble, and projects population under alternative scenarios.",
	SilenceUsage: true,
}

var cfgFile string
var version = "dev"

// SetVersion sets the version for the CLI
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.decision-forecast.yaml or ./config/defaults.yaml)")
	pf.String("data-dir", "./data", "Directory for the run database")
	pf.String("log-level", "info", "Log level (debug|info|warn|error)")
	pf.String("log-format", "json", "Log format (json|console)")
	pf.Int("workers", 4, "Algorithms, methods or scenarios run at once")
	pf.String("db-driver", "sqlite3", "Run store driver (sqlite3|postgres)")
	pf.String("db-dsn", "", "Run store DSN (default is <data-dir>/runs.db)")

	cobra.CheckErr(viper.BindPFlag(config.KeyDataDir, pf.Lookup("data-dir")))
	cobra.CheckErr(viper.BindPFlag(config.KeyLogLevel, pf.Lookup("log-level")))
	cobra.CheckErr(viper.BindPFlag(config.KeyLogFormat, pf.Lookup("log-format")))
	cobra.CheckErr(viper.BindPFlag(config.KeyWorkers, pf.Lookup("workers")))
	cobra.CheckErr(viper.BindPFlag(config.KeyDatabaseDriver, pf.Lookup("db-driver")))
	cobra.CheckErr(viper.BindPFlag(config.KeyDatabaseDSN, pf.Lookup("db-dsn")))

	rootCmd.AddCommand(serveCmd, forecastCmd, projectCmd, trainCmd, predictCmd)
}

func initConfig() {
	// FORECAST_DATABASE_DSN -> database.dsn
	config.BindEnv(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		cobra.CheckErr(viper.ReadInConfig())
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		return
	}

	home, err := os.UserHomeDir()
	cobra.CheckErr(err)

	viper.SetConfigType("yaml")
	viper.AddConfigPath(home)
	viper.AddConfigPath("./config")

	// Try .decision-forecast first, then defaults.yaml
	viper.SetConfigName(".decision-forecast")
	err = viper.ReadInConfig()

	notFound := &viper.ConfigFileNotFoundError{}
	if err != nil && errors.As(err, notFound) {
		viper.SetConfigName("defaults")
		err = viper.ReadInConfig()
	}

	switch {
	case err != nil && !errors.As(err, notFound):
		cobra.CheckErr(err)
	case err != nil:
		// The config file is optional
	default:
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setup loads the configuration and builds the process logger
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.Version = version

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

// openStore opens the configured run store
func openStore(ctx context.Context, cfg config.Config) (*store.Store, error) {
	return store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
