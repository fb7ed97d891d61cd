package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rewired-gh/cohortdecay/internal/logger"
)

// Unknown cohort policies
const (
	UnknownCohortError   = "error"
	UnknownCohortExclude = "exclude"
)

// Config represents the complete application configuration
type Config struct {
	Inputs   InputsConfig   `mapstructure:"inputs"`
	Cohorts  CohortsConfig  `mapstructure:"cohorts"`
	Output   OutputConfig   `mapstructure:"output"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// InputsConfig names the two source files
type InputsConfig struct {
	ReportingPath  string `mapstructure:"reporting_path"`
	MembershipPath string `mapstructure:"membership_path"`
}

// LabelCorrection rewrites a mislabeled "Month Year" key. An empty To drops the record.
type LabelCorrection struct {
	From string `mapstructure:"from" yaml:"from"`
	To   string `mapstructure:"to" yaml:"to"`
}

// CohortsConfig holds the analysis parameters
type CohortsConfig struct {
	ReferenceCohort      string            `mapstructure:"reference_cohort"`
	CutoffIndex          int               `mapstructure:"cutoff_index"`
	UnknownPolicy        string            `mapstructure:"unknown_policy"`
	LabelCorrections     []LabelCorrection `mapstructure:"label_corrections"`
	LabelCorrectionsFile string            `mapstructure:"label_corrections_file"`
}

// OutputConfig holds chart output configuration
type OutputConfig struct {
	ReportingChart string  `mapstructure:"reporting_chart"`
	DecayChart     string  `mapstructure:"decay_chart"`
	DPI            int     `mapstructure:"dpi"`
	WidthInches    float64 `mapstructure:"width"`
	HeightInches   float64 `mapstructure:"height"`
}

// StorageConfig holds run history configuration
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
	MaxRuns int    `mapstructure:"max_runs"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultLabelCorrections are the known mislabeled membership dates.
var DefaultLabelCorrections = []LabelCorrection{
	{From: "June 1990", To: "December 2021"},
	{From: "December 2008", To: "May 2022"},
	{From: "December 2004", To: "Aug 2022"},
	{From: "January 1983", To: "Jan 2023"},
}

// Load reads configuration from file and environment variables.
// An empty path yields defaults plus environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("COHORT_DECAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Inputs
	v.SetDefault("inputs.reporting_path", "gwwc-reporting-fraction-by-cohort-and-year.tsv")
	v.SetDefault("inputs.membership_path", "membership-dates.json")

	// Cohorts
	corrections := make([]map[string]interface{}, 0, len(DefaultLabelCorrections))
	for _, c := range DefaultLabelCorrections {
		corrections = append(corrections, map[string]interface{}{"from": c.From, "to": c.To})
	}
	v.SetDefault("cohorts.reference_cohort", "2009")
	v.SetDefault("cohorts.cutoff_index", 5)
	v.SetDefault("cohorts.unknown_policy", UnknownCohortError)
	v.SetDefault("cohorts.label_corrections", corrections)
	v.SetDefault("cohorts.label_corrections_file", "")

	// Output
	v.SetDefault("output.reporting_chart", "gwwc-recording-by-cohort-big.png")
	v.SetDefault("output.decay_chart", "gwwc-recording-decay-by-cohort-big.png")
	v.SetDefault("output.dpi", 180)
	v.SetDefault("output.width", 6.4)
	v.SetDefault("output.height", 4.8)

	// Storage
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.db_path", "./data/cohortdecay.db")
	v.SetDefault("storage.max_runs", 100)

	// Telegram
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate inputs
	if c.Inputs.ReportingPath == "" {
		return fmt.Errorf("inputs.reporting_path is required")
	}
	if c.Inputs.MembershipPath == "" {
		return fmt.Errorf("inputs.membership_path is required")
	}

	// Validate cohorts
	if c.Cohorts.ReferenceCohort == "" {
		return fmt.Errorf("cohorts.reference_cohort is required")
	}
	if c.Cohorts.CutoffIndex < 0 {
		return fmt.Errorf("cohorts.cutoff_index must not be negative")
	}
	if c.Cohorts.UnknownPolicy != UnknownCohortError && c.Cohorts.UnknownPolicy != UnknownCohortExclude {
		return fmt.Errorf("cohorts.unknown_policy must be one of: error, exclude")
	}
	seen := make(map[string]bool, len(c.Cohorts.LabelCorrections))
	for _, lc := range c.Cohorts.LabelCorrections {
		if lc.From == "" {
			return fmt.Errorf("cohorts.label_corrections entries need a non-empty from")
		}
		if seen[lc.From] {
			return fmt.Errorf("cohorts.label_corrections has duplicate entry for %q", lc.From)
		}
		seen[lc.From] = true
	}

	// Validate output
	if c.Output.ReportingChart == "" || c.Output.DecayChart == "" {
		return fmt.Errorf("output.reporting_chart and output.decay_chart are required")
	}
	if c.Output.DPI < 1 {
		return fmt.Errorf("output.dpi must be at least 1")
	}
	if c.Output.WidthInches <= 0 || c.Output.HeightInches <= 0 {
		return fmt.Errorf("output.width and output.height must be positive")
	}

	// Validate storage
	if c.Storage.Enabled {
		if c.Storage.DBPath == "" {
			return fmt.Errorf("storage.db_path is required when storage is enabled")
		}
		if c.Storage.MaxRuns < 1 {
			return fmt.Errorf("storage.max_runs must be at least 1")
		}
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Logging config
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil || c.Logging.Level != strings.ToLower(c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Corrections returns the inline label corrections as a lookup table
func (c *CohortsConfig) Corrections() map[string]string {
	table := make(map[string]string, len(c.LabelCorrections))
	for _, lc := range c.LabelCorrections {
		table[lc.From] = lc.To
	}
	return table
}
