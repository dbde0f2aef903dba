// Package config handles application configuration loading and validation.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Applying documented defaults for unset fields
//   - Validating the result before the rest of the process starts
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/datehist/config"
)

// Config represents the complete application configuration.
type Config struct {
	// Histogram configures the adaptive bucketing pass.
	Histogram HistogramConfig `yaml:"histogram"`

	// Percentile configures DDSketch percentile calculation.
	Percentile PercentileConfig `yaml:"percentile"`

	// Export configures Parquet output.
	Export ExportConfig `yaml:"export"`

	// Query configures the DuckDB read-back service.
	Query QueryConfig `yaml:"query"`

	// Pipeline configures concurrent partitioned runs.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// HistogramConfig configures the adaptive bucketing pass.
type HistogramConfig struct {
	// TargetBuckets is the upper bound on live bucket cardinality.
	TargetBuckets int `yaml:"target_buckets"`

	// TimezoneOffsetMinutes is the fixed offset from UTC used for calendar
	// alignment. Positive east of UTC, e.g. 120 for UTC+2, -330 for UTC-5:30.
	TimezoneOffsetMinutes int `yaml:"timezone_offset_minutes"`
}

// PercentileConfig configures DDSketch percentile calculation.
type PercentileConfig struct {
	// Enabled enables per-bucket percentile state.
	Enabled bool `yaml:"enabled"`

	// Accuracy is the relative accuracy (0.01 = 1% error).
	Accuracy float64 `yaml:"accuracy"`
}

// ExportConfig configures Parquet output.
type ExportConfig struct {
	// Compression is the algorithm: snappy, zstd, lz4, gzip, none.
	Compression string `yaml:"compression"`

	// CompressionLevel for algorithms that support it (zstd: 1-22).
	CompressionLevel int `yaml:"compression_level"`
}

// QueryConfig configures the DuckDB read-back service.
type QueryConfig struct {
	// MemoryLimit bounds DuckDB memory usage. Format: "512MB", "4GB".
	MemoryLimit string `yaml:"memory_limit"`
}

// PipelineConfig configures concurrent partitioned runs.
type PipelineConfig struct {
	// Partitions is the number of concurrent partitions. Zero means
	// GOMAXPROCS.
	Partitions int `yaml:"partitions"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches output to JSON format regardless of terminal detection.
	JSON bool `yaml:"json"`
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Histogram: HistogramConfig{
			TargetBuckets:         config.DefaultTargetBuckets,
			TimezoneOffsetMinutes: config.DefaultTimezoneOffsetMinutes,
		},
		Percentile: PercentileConfig{
			Enabled:  false,
			Accuracy: config.DefaultPercentileAccuracy,
		},
		Export: ExportConfig{
			Compression:      config.DefaultExportCompression,
			CompressionLevel: config.DefaultExportCompressionLevel,
		},
		Query: QueryConfig{
			MemoryLimit: config.DefaultQueryMemoryLimit,
		},
		Pipeline: PipelineConfig{
			Partitions: config.DefaultPipelinePartitions,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, overlaying it on the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// TimezoneOffset returns the configured offset as a duration.
func (c *HistogramConfig) TimezoneOffset() time.Duration {
	return time.Duration(c.TimezoneOffsetMinutes) * time.Minute
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Histogram.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("histogram: %w", err))
	}

	if err := c.Percentile.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("percentile: %w", err))
	}

	if err := c.Export.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("export: %w", err))
	}

	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pipeline: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the histogram configuration.
func (c *HistogramConfig) Validate() error {
	var errs []error

	if c.TargetBuckets <= 0 {
		errs = append(errs, errors.New("target_buckets must be positive"))
	}
	if c.TargetBuckets > config.BucketLimit {
		errs = append(errs, fmt.Errorf("target_buckets must not exceed %d", config.BucketLimit))
	}

	// A day is the largest plausible fixed offset.
	if c.TimezoneOffsetMinutes < -24*60 || c.TimezoneOffsetMinutes > 24*60 {
		errs = append(errs, errors.New("timezone_offset_minutes must be within one day of UTC"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the percentile configuration.
func (c *PercentileConfig) Validate() error {
	if c.Enabled && (c.Accuracy <= 0 || c.Accuracy > 1) {
		return errors.New("accuracy must be between 0 and 1")
	}
	return nil
}

// Validate checks the export configuration.
func (c *ExportConfig) Validate() error {
	var errs []error

	validAlgorithms := map[string]bool{
		"snappy": true,
		"zstd":   true,
		"lz4":    true,
		"gzip":   true,
		"none":   true,
		"":       true, // Empty defaults to zstd
	}
	if !validAlgorithms[c.Compression] {
		errs = append(errs, errors.New("compression must be one of: snappy, zstd, lz4, gzip, none"))
	}

	if c.Compression == "zstd" && (c.CompressionLevel < 0 || c.CompressionLevel > 22) {
		errs = append(errs, errors.New("compression_level for zstd must be between 0 and 22"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the pipeline configuration.
func (c *PipelineConfig) Validate() error {
	if c.Partitions < 0 {
		return errors.New("partitions must not be negative")
	}
	return nil
}

// Validate checks the logging configuration.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", c.Level)
	}
}
