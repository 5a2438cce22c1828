package main

import (
	"os"

	"github.com/agrilink/fleetcore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
