// SPDX-License-Identifier: MPL-2.0

// Package installer runs the install pipeline: resolve the manifest (or reuse
// a lock file that still satisfies it), fetch every pinned dependency into
// buckle_modules in parallel through the download cache or git, then write
// the lock file. Progress is reported as a process.Process of Steps.
package installer
