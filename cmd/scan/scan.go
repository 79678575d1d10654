// Package scan catalogs a music directory and runs fingerprint extraction
// over it.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/auralis-audio/auralis/internal/audiofile"
	"github.com/auralis-audio/auralis/internal/conf"
	"github.com/auralis-audio/auralis/internal/datastore"
	"github.com/auralis-audio/auralis/internal/errors"
	"github.com/auralis-audio/auralis/internal/extraction"
	"github.com/auralis-audio/auralis/internal/logging"
	"github.com/auralis-audio/auralis/internal/observability/metrics"
)

// Command creates the scan command.
func Command(settings *conf.Settings) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "scan [directory]",
		Short: "Catalog a directory and queue fingerprint extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings, args[0], wait)
		},
	}
	cmd.SilenceUsage = true
	cmd.Flags().BoolVarP(&wait, "wait", "w", true, "Wait for extraction to finish before exiting")
	return cmd
}

func run(settings *conf.Settings, dir string, wait bool) error {
	m := metrics.NewMetrics()
	store, err := datastore.New(settings, m.Cache)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // read-mostly CLI run

	added, skipped, err := catalogDirectory(store, dir)
	if err != nil {
		return err
	}
	fmt.Printf("Cataloged %d new tracks (%d skipped) from %s\n", added, skipped, dir)

	pool := extraction.NewPool(store, extraction.Config{
		Workers: settings.FingerprintWorkers,
	}, m.Extraction)
	if err := pool.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	if wait {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for pool.QueueDepth() > 0 {
			select {
			case <-sigChan:
				fmt.Println("\nInterrupted, shutting down workers...")
				pool.Shutdown(10 * time.Second)
				return nil
			case <-ticker.C:
			}
		}
		// Drain in-flight jobs.
		pool.Shutdown(time.Minute)
		fmt.Println("Fingerprint extraction finished")
	} else {
		pool.Shutdown(time.Minute)
	}
	return nil
}

// catalogDirectory walks dir and adds every supported audio file that is
// not already cataloged. A file the decoder rejects is skipped and logged;
// the scan continues.
func catalogDirectory(store *datastore.DataStore, dir string) (added, skipped int, err error) {
	log := logging.ForService("scan")

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".wav" && ext != ".flac" {
			return nil
		}

		if _, err := store.GetTrackByPath(path); err == nil {
			skipped++
			return nil
		}

		info, err := audiofile.GetAudioInfo(path)
		if err != nil {
			// Per-file decode failures are catalog-level recoverable.
			log.Warn("skipping undecodable file", "path", path, "error", err)
			skipped++
			return nil
		}

		track := &datastore.Track{
			Path:            path,
			Title:           strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())),
			Format:          info.Format,
			SampleRate:      info.SampleRate,
			Channels:        info.Channels,
			DurationSeconds: info.DurationSeconds(),
		}
		if err := store.AddTrack(track); err != nil {
			if errors.Is(err, datastore.ErrDuplicatePath) {
				skipped++
				return nil
			}
			return err
		}
		added++
		return nil
	})
	return added, skipped, walkErr
}
