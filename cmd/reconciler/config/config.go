// Package config assembles the command-line tool's settings from flags, a
// config file, RECONCILER_* environment variables and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang-reconciliation-engine/internal/anomaly"
	"golang-reconciliation-engine/internal/api"
	"golang-reconciliation-engine/internal/matcher"
	"golang-reconciliation-engine/internal/patterns"
	"golang-reconciliation-engine/internal/reconciler"
	"golang-reconciliation-engine/internal/reporter"
	apperrors "golang-reconciliation-engine/pkg/errors"
	"golang-reconciliation-engine/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the tool reads
const EnvPrefix = "RECONCILER"

// DatabaseConfig locates the record store
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// OutputConfig selects how command results are rendered
type OutputConfig struct {
	Format   string `mapstructure:"format"`
	File     string `mapstructure:"file"`
	MaxItems int    `mapstructure:"max_items"`
	Colors   bool   `mapstructure:"colors"`
}

// PatternsConfig tunes the in-memory pattern cache
type PatternsConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// AppConfig is the complete tool configuration
type AppConfig struct {
	Database DatabaseConfig          `mapstructure:"database"`
	Logging  logger.Config           `mapstructure:"logging"`
	Scoring  matcher.ScoringConfig   `mapstructure:"scoring"`
	Anomaly  anomaly.Config          `mapstructure:"anomaly"`
	Server   api.Config              `mapstructure:"server"`
	Retry    reconciler.RetryOptions `mapstructure:"retry"`
	Patterns PatternsConfig          `mapstructure:"patterns"`
	Output   OutputConfig            `mapstructure:"output"`
}

// Default returns the configuration used when nothing is overridden
func Default() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{Path: "reconciler.db"},
		Logging:  *logger.DefaultConfig(),
		Scoring:  *matcher.DefaultScoringConfig(),
		Anomaly:  *anomaly.DefaultConfig(),
		Server:   api.DefaultConfig(),
		Retry:    reconciler.DefaultRetryOptions(),
		Patterns: PatternsConfig{CacheTTL: patterns.DefaultCacheTTL},
		Output:   OutputConfig{Format: string(reporter.FormatConsole), Colors: true},
	}
}

// scoringKeys are bound to the environment without defaults so that a preset
// chosen with scoring.preset is only overridden key by key
var scoringKeys = []string{
	"scoring.amount.exact_weight", "scoring.amount.tight_weight", "scoring.amount.tight_tolerance",
	"scoring.amount.loose_weight", "scoring.amount.loose_tolerance",
	"scoring.date.exact_weight", "scoring.date.near_weight", "scoring.date.near_days",
	"scoring.date.far_weight", "scoring.date.far_days",
	"scoring.tax_id_weight", "scoring.reference_weight", "scoring.counterparty_weight",
	"scoring.counterparty_prefix_len", "scoring.match_threshold", "scoring.partial_threshold",
	"scoring.suggestion_floor", "scoring.suggestion_limit",
	"scoring.pattern_boost", "scoring.min_fingerprint_length",
}

// SetDefaults registers defaults and environment bindings on v
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("logging.level", string(d.Logging.Level))
	v.SetDefault("logging.format", string(d.Logging.Format))
	v.SetDefault("logging.output", string(d.Logging.Output))
	v.SetDefault("logging.file", d.Logging.File)

	v.SetDefault("scoring.preset", "default")
	for _, key := range scoringKeys {
		_ = v.BindEnv(key)
	}

	v.SetDefault("anomaly.average_group_size", d.Anomaly.AverageGroupSize)
	v.SetDefault("anomaly.test_group_size", d.Anomaly.TestGroupSize)
	v.SetDefault("anomaly.unusual_factor", d.Anomaly.UnusualFactor)
	v.SetDefault("anomaly.high_factor", d.Anomaly.HighFactor)
	v.SetDefault("anomaly.duplicate_window_days", d.Anomaly.DuplicateWindowDays)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.requests_per_second", d.Server.RequestsPerSecond)
	v.SetDefault("server.burst", d.Server.Burst)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.initial_delay", d.Retry.InitialDelay)
	v.SetDefault("retry.max_delay", d.Retry.MaxDelay)

	v.SetDefault("patterns.cache_ttl", d.Patterns.CacheTTL)

	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.file", d.Output.File)
	v.SetDefault("output.max_items", d.Output.MaxItems)
	v.SetDefault("output.colors", d.Output.Colors)
}

// LoadEnvFiles loads KEY=value pairs from the given .env files into the
// process environment. Missing files are skipped and variables already set
// are never overwritten.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "env_file", path, err).
				WithSuggestion("Check the .env file uses KEY=value lines")
		}
	}
	return nil
}

// Load builds the configuration from v on top of Default. The scoring preset
// is applied before individual scoring keys.
func Load(v *viper.Viper) (*AppConfig, error) {
	cfg := Default()

	preset, err := ScoringPreset(v.GetString("scoring.preset"))
	if err != nil {
		return nil, err
	}
	cfg.Scoring = *preset

	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "config", v.ConfigFileUsed(), err).
			WithSuggestion("Check the config file syntax and value types")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ScoringPreset returns a named scoring configuration
func ScoringPreset(name string) (*matcher.ScoringConfig, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return matcher.DefaultScoringConfig(), nil
	case "strict":
		return matcher.StrictScoringConfig(), nil
	case "relaxed":
		return matcher.RelaxedScoringConfig(), nil
	}
	return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "scoring.preset", name, nil).
		WithSuggestion("use one of default, strict, relaxed")
}

// ValidateConfig validates that all sections are usable
func ValidateConfig(cfg *AppConfig) error {
	if strings.TrimSpace(cfg.Database.Path) == "" {
		return apperrors.ConfigurationError(apperrors.CodeMissingConfig, "database.path", cfg.Database.Path, nil).
			WithSuggestion("Set --db or RECONCILER_DATABASE_PATH")
	}
	if err := cfg.Logging.Validate(); err != nil {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "logging", cfg.Logging, err)
	}
	if err := cfg.Scoring.Validate(); err != nil {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "scoring", cfg.Scoring.String(), err)
	}
	if err := cfg.Anomaly.Validate(); err != nil {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "anomaly", cfg.Anomaly.String(), err)
	}
	if err := cfg.Server.Validate(); err != nil {
		return err
	}
	if cfg.Retry.MaxAttempts < 1 {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "retry.max_attempts", cfg.Retry.MaxAttempts, nil)
	}
	if _, err := cfg.ReportConfig(); err != nil {
		return err
	}
	return nil
}

// ReportConfig derives the reporter settings from the output section
func (c *AppConfig) ReportConfig() (*reporter.ReportConfig, error) {
	format, err := reporter.ParseOutputFormat(c.Output.Format)
	if err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "output.format", c.Output.Format, err).
			WithSuggestion("use one of console, json, yaml, csv")
	}

	rc := reporter.DefaultReportConfig()
	rc.Format = format
	rc.MaxItems = c.Output.MaxItems
	rc.UseColors = c.Output.Colors && format == reporter.FormatConsole
	if err := rc.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "output", c.Output, err)
	}
	return rc, nil
}

func (c *AppConfig) String() string {
	return fmt.Sprintf("AppConfig{db: %s, log: %s, output: %s, %s, %s}",
		c.Database.Path, c.Logging.Level, c.Output.Format, c.Scoring.String(), c.Anomaly.String())
}
