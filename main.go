// The main package for the sitesnap executable.
package main

import (
	"github.com/useneurox-company/sitesnap/cmd"
)

func main() {
	cmd.Execute()
}
