// The main package for the kb-engine executable.
package main

import (
	"github.com/JakeFAU/kb-engine/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
