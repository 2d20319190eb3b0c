// SPDX-License-Identifier: MPL-2.0

// Package version provides four-component semantic versions and the
// requirement predicates recipes use to select among them.
package version
