// The main package for the pinfetch executable.
package main

import (
	"github.com/JakeFAU/pinfetch/cmd"
)

func main() {
	cmd.Execute()
}
