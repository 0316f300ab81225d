package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Configuration keys
const (
	KeyPort               = "port"
	KeyDataDir            = "data-dir"
	KeyLogLevel           = "log.level"
	KeyLogFormat          = "log.format"
	KeyDatabaseDriver     = "database.driver"
	KeyDatabaseDSN        = "database.dsn"
	KeyWorkers            = "workers"
	KeyForecastHorizon    = "forecast.horizon"
	KeyConfidenceLevel    = "forecast.confidence-level"
	KeyMinObservations    = "forecast.min-observations"
	KeyProjectionHorizon  = "projection.horizon"
	KeyHoldoutFraction    = "training.holdout-fraction"
	KeyTrainingSeed       = "training.seed"
	KeyMaxSessions        = "training.max-sessions"
	EnvPrefix             = "FORECAST"
	defaultDatabaseFile   = "runs.db"
	defaultDatabaseDriver = "sqlite3"

	// forecasts need at least this many observations
	minForecastObservations = 10
)

// Config holds the application configuration
type Config struct {
	Port      int
	DataDir   string
	Version   string
	LogLevel  string
	LogFormat string

	DatabaseDriver string
	DatabaseDSN    string

	Workers           int
	ForecastHorizon   int
	ConfidenceLevel   float64
	MinObservations   int
	ProjectionHorizon int
	HoldoutFraction   float64
	TrainingSeed      int64
	MaxSessions       int
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyPort, 8080)
	v.SetDefault(KeyDataDir, "./data")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
	v.SetDefault(KeyDatabaseDriver, defaultDatabaseDriver)
	v.SetDefault(KeyDatabaseDSN, "")
	v.SetDefault(KeyWorkers, 4)
	v.SetDefault(KeyForecastHorizon, 20)
	v.SetDefault(KeyConfidenceLevel, 0.95)
	v.SetDefault(KeyMinObservations, minForecastObservations)
	v.SetDefault(KeyProjectionHorizon, 30)
	v.SetDefault(KeyHoldoutFraction, 0.2)
	v.SetDefault(KeyTrainingSeed, 42)
	v.SetDefault(KeyMaxSessions, 16)
}

// BindEnv maps FORECAST_* environment variables onto keys,
// e.g. FORECAST_DATABASE_DSN for database.dsn
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads and validates the configuration
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:              v.GetInt(KeyPort),
		DataDir:           v.GetString(KeyDataDir),
		LogLevel:          strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		LogFormat:         strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
		DatabaseDriver:    v.GetString(KeyDatabaseDriver),
		DatabaseDSN:       v.GetString(KeyDatabaseDSN),
		Workers:           v.GetInt(KeyWorkers),
		ForecastHorizon:   v.GetInt(KeyForecastHorizon),
		ConfidenceLevel:   v.GetFloat64(KeyConfidenceLevel),
		MinObservations:   v.GetInt(KeyMinObservations),
		ProjectionHorizon: v.GetInt(KeyProjectionHorizon),
		HoldoutFraction:   v.GetFloat64(KeyHoldoutFraction),
		TrainingSeed:      v.GetInt64(KeyTrainingSeed),
		MaxSessions:       v.GetInt(KeyMaxSessions),
	}

	if cfg.DatabaseDSN == "" && cfg.DatabaseDriver == defaultDatabaseDriver {
		cfg.DatabaseDSN = filepath.Join(cfg.DataDir, defaultDatabaseFile)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	case c.ForecastHorizon < 1:
		return fmt.Errorf("forecast horizon must be at least 1, got %d", c.ForecastHorizon)
	case c.ProjectionHorizon < 1:
		return fmt.Errorf("projection horizon must be at least 1, got %d", c.ProjectionHorizon)
	case !(c.ConfidenceLevel > 0 && c.ConfidenceLevel < 1):
		return fmt.Errorf("confidence level must be in (0, 1), got %v", c.ConfidenceLevel)
	case c.MinObservations < minForecastObservations:
		return fmt.Errorf("min observations must be at least %d, got %d", minForecastObservations, c.MinObservations)
	case !(c.HoldoutFraction > 0 && c.HoldoutFraction < 1):
		return fmt.Errorf("holdout fraction must be in (0, 1), got %v", c.HoldoutFraction)
	case c.DatabaseDriver != "sqlite3" && c.DatabaseDriver != "postgres":
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	return nil
}
