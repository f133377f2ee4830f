package main

import (
	"os"

	"signalcore/cmd/sigctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
