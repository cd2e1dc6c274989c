package main

import (
	"os"

	"github.com/gagps/ecommerce-cx/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
