// Package analyze computes and prints a track's perceptual fingerprint.
package analyze

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/auralis-audio/auralis/internal/audiofile"
	"github.com/auralis-audio/auralis/internal/conf"
	"github.com/auralis-audio/auralis/internal/fingerprint"
)

// Command creates the analyze command.
func Command(settings *conf.Settings) *cobra.Command {
	var writeSidecar bool

	cmd := &cobra.Command{
		Use:   "analyze [input file]",
		Short: "Compute the 25-dimensional fingerprint of an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
			go func() {
				<-sigChan
				cancel()
			}()

			return run(ctx, args[0], writeSidecar)
		},
	}
	cmd.SilenceUsage = true
	cmd.Flags().BoolVarP(&writeSidecar, "sidecar", "s", true, "Write the .25d sidecar next to the file")
	return cmd
}

func run(ctx context.Context, input string, writeSidecar bool) error {
	dec, err := audiofile.Open(input)
	if err != nil {
		return err
	}
	info := dec.Info()

	fp, err := fingerprint.Analyze(ctx, dec.ReadAll(), info.SampleRate, info.Channels)
	if err != nil {
		return err
	}

	keys := fingerprint.Keys()
	vector := fp.Vector()
	fmt.Printf("%s (%s, %d Hz, %d ch, %.1fs)\n", input, info.Format,
		info.SampleRate, info.Channels, info.DurationSeconds())
	for i, key := range keys {
		fmt.Printf("  %-24s %10.4f\n", key, vector[i])
	}

	if writeSidecar {
		if err := fingerprint.SaveSidecar(input, fp); err != nil {
			return err
		}
		fmt.Printf("Sidecar written to %s\n", fingerprint.SidecarPath(input))
	}
	return nil
}
