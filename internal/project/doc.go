// SPDX-License-Identifier: MPL-2.0

// Package project reads and writes the files a project keeps in its
// directory: the buckle.cue manifest declaring dependencies and the
// buckle.lock.toml file pinning them.
package project
