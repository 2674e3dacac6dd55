package main

import (
	"os"

	"github.com/atlas-desktop/journal-backend/cmd/mcsim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
