// SPDX-License-Identifier: MPL-2.0

// Command buckle is a package manager for native dependencies.
package main

import cmd "github.com/invowk/buckle/cmd/buckle"

func main() {
	cmd.Execute()
}
