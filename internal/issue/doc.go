// SPDX-License-Identifier: MPL-2.0

// Package issue holds user-facing error reporting: ActionableError for
// errors that carry suggestions, and a catalog of markdown explanations
// rendered with glamour.
package issue
