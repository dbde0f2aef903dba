// Package errors consolidates error definitions for the datehist project.
//
// This package provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Configuration errors - detected at construction, never during ingestion.
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidTarget    = errors.New("target bucket count out of range")
	ErrInvalidHierarchy = errors.New("malformed rounding hierarchy")

	// Merge errors
	ErrMergeIncompatible = errors.New("partitions configured with different hierarchy or target")

	// Wire errors
	ErrMalformedWire = errors.New("malformed wire data")
	ErrShortBuffer   = errors.New("buffer too short")

	// Storage errors
	ErrWriterClosed = errors.New("writer is closed")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsConfiguration returns true if err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidTarget) ||
		errors.Is(err, ErrInvalidHierarchy)
}

// IsWire returns true if err is a wire decoding error.
func IsWire(err error) bool {
	return errors.Is(err, ErrMalformedWire) ||
		errors.Is(err, ErrShortBuffer)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}
