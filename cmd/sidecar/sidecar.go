// Package sidecar inspects .25d fingerprint sidecar files.
package sidecar

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/auralis-audio/auralis/internal/fingerprint"
)

// Command creates the sidecar command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sidecar [file.25d | audio file]",
		Short: "Validate and print a fingerprint sidecar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0])
		},
	}
	cmd.SilenceUsage = true
	return cmd
}

func run(path string) error {
	if !strings.HasSuffix(path, fingerprint.SidecarExtension) {
		path = fingerprint.SidecarPath(path)
	}

	data, err := os.ReadFile(path) //nolint:gosec // CLI argument
	if err != nil {
		return err
	}

	fp, mtime, err := fingerprint.DecodeSidecar(data)
	if err != nil {
		fmt.Printf("%s: INVALID (%v)\n", path, err)
		return err
	}

	fmt.Printf("%s: valid, written %s\n", path, mtime.Format("2006-01-02 15:04:05"))
	keys := fingerprint.Keys()
	vector := fp.Vector()
	for i, key := range keys {
		fmt.Printf("  %-24s %10.4f\n", key, vector[i])
	}
	return nil
}
