package main

import (
	"fmt"
	"os"

	"github.com/auralis-audio/auralis/cmd"
	"github.com/auralis-audio/auralis/internal/conf"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
