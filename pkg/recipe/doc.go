// SPDX-License-Identifier: MPL-2.0

// Package recipe defines package coordinates, dependency groups, the recipe
// catalog data model and the pinned output of resolution.
package recipe
