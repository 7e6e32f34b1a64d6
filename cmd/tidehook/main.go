package main

import (
	"os"

	"github.com/tidehook/tidehook/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
