package main

import (
	"os"

	"github.com/wardenhq/warden/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
