package main

import (
	"os"

	"github.com/solatis/policykit/cmd/policykit/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
