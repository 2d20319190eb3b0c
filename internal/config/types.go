// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// LogLevelDebug logs everything.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default level.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs warnings and errors.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs errors only.
	LogLevelError LogLevel = "error"

	// DefaultConcurrency bounds parallel downloads.
	DefaultConcurrency = 4
	// DefaultProgressIntervalBytes is how often download progress is reported.
	DefaultProgressIntervalBytes int64 = 1 << 20
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is the minimum severity written to the log.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	// It wraps ErrInvalidLogLevel for errors.Is() compatibility.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// CatalogConfig selects the recipe catalogs. Directories are consulted
	// in order, then the registry.
	CatalogConfig struct {
		// Dirs are local recipe directories.
		Dirs []string `json:"dirs" mapstructure:"dirs"`
		// Registry is the base URL of a remote JSON registry.
		Registry string `json:"registry" mapstructure:"registry"`
	}

	// Config holds the application configuration.
	Config struct {
		// CacheDir overrides the platform cache root when set.
		CacheDir string `json:"cache_dir" mapstructure:"cache_dir"`
		// Concurrency bounds parallel dependency fetches.
		Concurrency int `json:"concurrency" mapstructure:"concurrency"`
		// ProgressIntervalBytes is the download progress cadence.
		ProgressIntervalBytes int64 `json:"progress_interval_bytes" mapstructure:"progress_interval_bytes"`
		// Catalog selects where recipes come from.
		Catalog CatalogConfig `json:"catalog" mapstructure:"catalog"`
		// LogLevel is the minimum severity logged.
		LogLevel LogLevel `json:"log_level" mapstructure:"log_level"`
	}
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the LogLevel is one of the defined levels,
// and a list of validation errors if it is not.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Error implements the error interface for InvalidLogLevelError.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// IsValid checks the fields the schema cannot see, which matters for values
// that arrive through environment overrides.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.LogLevel.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.ProgressIntervalBytes < 1 {
		errs = append(errs, fmt.Errorf("progress_interval_bytes must be at least 1, got %d", c.ProgressIntervalBytes))
	}
	if c.CacheDir != "" && strings.TrimSpace(c.CacheDir) == "" {
		errs = append(errs, errors.New("cache_dir must not be whitespace-only"))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	if len(e.FieldErrors) == 1 {
		return "invalid config: " + e.FieldErrors[0].Error()
	}
	return fmt.Sprintf("invalid config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidConfig followed by the field errors, so errors.Is
// matches the sentinel and any field-level sentinel.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		CacheDir:              "", // platform cache root
		Concurrency:           DefaultConcurrency,
		ProgressIntervalBytes: DefaultProgressIntervalBytes,
		Catalog:               CatalogConfig{Dirs: []string{}},
		LogLevel:              LogLevelInfo,
	}
}
