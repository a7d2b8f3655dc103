// Package config provides validation helpers shared by the storage backends
// and the research engine.
package config

import (
	"fmt"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for field %q: %s", e.Field, e.Message)
}

// Validator accumulates validation errors across chained checks.
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{
		errors: []ValidationError{},
	}
}

// RequireNonEmpty validates that a string field is not empty
func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if value == "" {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: "value cannot be empty",
		})
	}
	return v
}

// RequirePositive validates that an integer field is greater than 0
func (v *Validator) RequirePositive(field string, value int) *Validator {
	if value <= 0 {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value must be positive, got %d", value),
		})
	}
	return v
}

// RequireRange validates that an integer field is within a range [min, max]
func (v *Validator) RequireRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value must be between %d and %d, got %d", min, max, value),
		})
	}
	return v
}

// RequireFloatRange validates that a float field is within a range [min, max]
func (v *Validator) RequireFloatRange(field string, value, min, max float64) *Validator {
	if value < min || value > max {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value must be between %.2f and %.2f, got %.2f", min, max, value),
		})
	}
	return v
}

// RequirePort validates that a port number is valid (1-65535)
func (v *Validator) RequirePort(field string, port int) *Validator {
	return v.RequireRange(field, port, 1, 65535)
}

// RequireOneOf validates that a string value is one of the allowed options
func (v *Validator) RequireOneOf(field string, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if a == value {
			return v
		}
	}
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be one of %v, got %q", allowed, value),
	})
	return v
}

// RequireLessThan validates that a < b across two integer fields.
func (v *Validator) RequireLessThan(field string, a, b int) *Validator {
	if a >= b {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value must be less than %d, got %d", b, a),
		})
	}
	return v
}

// HasErrors returns true if there are any validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns a combined error message or nil if no errors
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}

	msg := "configuration validation failed:\n"
	for _, e := range v.errors {
		msg += fmt.Sprintf("  - %s: %s\n", e.Field, e.Message)
	}
	return fmt.Errorf("%s", msg)
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ValidatePostgresConfig validates a PostgreSQL connection configuration.
// An empty password is allowed for trust-auth and local setups.
func ValidatePostgresConfig(host string, port int, user string, dbName string, sslMode string) error {
	v := NewValidator()

	v.RequireNonEmpty("host", host)
	v.RequirePort("port", port)
	v.RequireNonEmpty("user", user)
	v.RequireNonEmpty("dbName", dbName)
	v.RequireOneOf("sslMode", sslMode, "disable", "require", "verify-ca", "verify-full")

	return v.Error()
}

// ValidateRedisConfig validates a Redis session-store configuration.
func ValidateRedisConfig(addr string, db int, prefix string) error {
	v := NewValidator()

	v.RequireNonEmpty("addr", addr)
	v.RequireRange("db", db, 0, 15)
	v.RequireNonEmpty("prefix", prefix)

	return v.Error()
}

// ValidateMongoConfig validates a MongoDB session-store configuration.
func ValidateMongoConfig(uri string, database string, collection string) error {
	v := NewValidator()

	v.RequireNonEmpty("uri", uri)
	v.RequireNonEmpty("database", database)
	v.RequireNonEmpty("collection", collection)

	return v.Error()
}

// ValidatePGVectorConfig validates a pgvector index configuration.
func ValidatePGVectorConfig(host string, port int, user string, dbName string,
	sslMode string, dimension int, tableName string) error {
	v := NewValidator()

	v.RequireNonEmpty("host", host)
	v.RequirePort("port", port)
	v.RequireNonEmpty("user", user)
	v.RequireNonEmpty("dbName", dbName)
	v.RequireOneOf("sslMode", sslMode, "disable", "require", "verify-ca", "verify-full")
	v.RequireRange("dimension", dimension, 1, 65535)
	v.RequireNonEmpty("tableName", tableName)

	return v.Error()
}

// ValidateProviderConfig validates a completion-provider configuration.
func ValidateProviderConfig(apiKey string, model string, temperature float64, maxTokens int) error {
	v := NewValidator()

	v.RequireNonEmpty("apiKey", apiKey)
	v.RequireNonEmpty("model", model)
	v.RequireFloatRange("temperature", temperature, 0.0, 2.0)
	v.RequirePositive("maxTokens", maxTokens)

	return v.Error()
}

// ValidateWindowing validates the sequential-windowing knobs of the engine.
// The overlap must leave a positive stride.
func ValidateWindowing(windowWords, windowOverlap, maxWindows int) error {
	v := NewValidator()

	v.RequirePositive("windowWords", windowWords)
	v.RequireRange("windowOverlap", windowOverlap, 0, 1<<30)
	v.RequirePositive("maxWindows", maxWindows)
	if windowWords > 0 && windowOverlap >= windowWords {
		// Tolerated at runtime via a forced stride, but flagged here so
		// misconfigurations surface before a plan runs.
		v.errors = append(v.errors, ValidationError{
			Field:   "windowOverlap",
			Message: fmt.Sprintf("overlap %d leaves no stride for window size %d", windowOverlap, windowWords),
		})
	}

	return v.Error()
}

// ValidateNoveltyThresholds validates the duplicate-pruning thresholds.
func ValidateNoveltyThresholds(similarity, keywordOverlap float64) error {
	v := NewValidator()

	v.RequireFloatRange("similarityThreshold", similarity, 0.0, 1.0)
	v.RequireFloatRange("keywordOverlapThreshold", keywordOverlap, 0.0, 1.0)

	return v.Error()
}
