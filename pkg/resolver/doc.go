// SPDX-License-Identifier: MPL-2.0

// Package resolver turns a project's declared dependencies into one pinned
// version per coordinate, or into the complete list of reasons it cannot.
package resolver
