// SPDX-License-Identifier: MPL-2.0

// Package platform holds operating-system conventions: where per-user cache
// and configuration directories live, and which file names Windows rejects.
package platform
