package main

import (
	"os"

	"github.com/guidepath/guidepath/cmd/guidepathctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
