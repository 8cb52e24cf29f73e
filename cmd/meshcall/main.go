package main

import (
	"os"

	"github.com/dkeye/meshcall/cmd/meshcall/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
