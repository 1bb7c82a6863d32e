package main

import (
	"os"

	"github.com/aravindh-murugesan/paperscout-go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
