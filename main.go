// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/depforge/depforge/cmd/depforge"

func main() {
	cmd.Execute()
}
