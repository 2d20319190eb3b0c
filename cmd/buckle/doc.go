// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for buckle.
//
// NewApp is the composition root: it wires configuration, the git client
// and the shared cache metrics, and NewRootCommand builds the Cobra tree
// around it. Execute runs the tree through fang.
package cmd
