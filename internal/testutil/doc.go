// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by tests: environment setters that
// restore on cleanup, archive builders and a static artifact server.
package testutil
