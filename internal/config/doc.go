// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from config.cue in the platform config directory
// (~/.config/buckle on Linux, ~/Library/Application Support/buckle on macOS,
// %APPDATA%\buckle on Windows), or from the working directory. Files are
// validated against the embedded #Config schema; BUCKLE_* environment
// variables override file values.
package config
