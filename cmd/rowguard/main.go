package main

import (
	"os"

	"github.com/veridian-systems/rowguard/cmd/rowguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
