package main

import (
	"os"

	"orion/cmd/orion/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
