// Package main provides the simtrace command.
package main

import (
	_ "github.com/sarchlab/simtrace/designs"
	"github.com/sarchlab/simtrace/simtrace/cmd"
)

func main() {
	cmd.Execute()
}
