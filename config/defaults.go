// Package config provides configuration defaults and utilities
// for the datehist application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

// =============================================================================
// Histogram Defaults
// =============================================================================

const (
	// DefaultTargetBuckets is the default upper bound on live bucket
	// cardinality when none is configured.
	// Override via config: histogram.target_buckets
	DefaultTargetBuckets = 10

	// BucketLimit is the hard ceiling for target_buckets. Values above this
	// are rejected at construction.
	BucketLimit = 10000

	// DefaultTimezoneOffsetMinutes is the fixed timezone offset used for
	// calendar alignment when none is configured (UTC).
	// Override via config: histogram.timezone_offset_minutes
	DefaultTimezoneOffsetMinutes = 0
)

// =============================================================================
// Percentile Defaults
// =============================================================================

const (
	// DefaultPercentileAccuracy is the DDSketch relative accuracy used for
	// per-bucket percentile state (0.01 = 1% error).
	// Override via config: percentile.accuracy
	DefaultPercentileAccuracy = 0.01
)

// =============================================================================
// Export Defaults
// =============================================================================

const (
	// DefaultExportCompression is the Parquet compression algorithm for
	// exported histograms: snappy, zstd, lz4, gzip or none.
	// Override via config: export.compression
	DefaultExportCompression = "zstd"

	// DefaultExportCompressionLevel is the compression level for algorithms
	// that support one (zstd: 1-22).
	// Override via config: export.compression_level
	DefaultExportCompressionLevel = 3
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultQueryMemoryLimit bounds DuckDB memory usage for read-back
	// queries over exported Parquet files.
	// Override via config: query.memory_limit
	DefaultQueryMemoryLimit = "512MB"
)

// =============================================================================
// Pipeline Defaults
// =============================================================================

const (
	// DefaultPipelinePartitions is the number of concurrent partitions when
	// the caller does not choose one. Zero means GOMAXPROCS.
	// Override via config: pipeline.partitions
	DefaultPipelinePartitions = 0
)
