// Package play renders a track through the adaptive mastering pipeline.
package play

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/auralis-audio/auralis/internal/audiofile"
	"github.com/auralis-audio/auralis/internal/chunkcache"
	"github.com/auralis-audio/auralis/internal/conf"
	"github.com/auralis-audio/auralis/internal/datastore"
	"github.com/auralis-audio/auralis/internal/dsp"
	"github.com/auralis-audio/auralis/internal/events"
	"github.com/auralis-audio/auralis/internal/fingerprint"
	"github.com/auralis-audio/auralis/internal/observability/metrics"
	"github.com/auralis-audio/auralis/internal/player"
	"github.com/auralis-audio/auralis/internal/preset"
	"github.com/auralis-audio/auralis/internal/render"
)

// Command creates the play command: master one file and write the result.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		presetName string
		intensity  float64
		output     string
	)

	cmd := &cobra.Command{
		Use:   "play [input file]",
		Short: "Render a track through the mastering pipeline",
		Long:  `Master a single audio file with the selected preset and write the rendered audio to a WAV file.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
			go func() {
				<-sigChan
				fmt.Println("\nInterrupted, stopping render...")
				cancel()
			}()

			if output == "" {
				base := filepath.Base(args[0])
				output = base[:len(base)-len(filepath.Ext(base))] + ".mastered.wav"
			}
			return run(ctx, settings, args[0], presetName, intensity, output)
		},
	}
	cmd.SilenceUsage = true

	cmd.Flags().StringVarP(&presetName, "preset", "p", viper.GetString("default_preset"), "Mastering preset")
	cmd.Flags().Float64VarP(&intensity, "intensity", "i", viper.GetFloat64("default_intensity"), "Mastering intensity (0..1)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output WAV path (default: <input>.mastered.wav)")
	return cmd
}

func run(ctx context.Context, settings *conf.Settings, input, presetName string, intensity float64, output string) error {
	dec, err := audiofile.Open(input)
	if err != nil {
		return err
	}
	info := dec.Info()

	// A valid sidecar feeds the adaptive preset; a missing or stale one
	// must never block playback, so the fingerprint stays nil and
	// adaptive degenerates to a neutral profile.
	fp, err := fingerprint.LoadSidecar(input)
	if err != nil {
		fp = nil
	}
	if fp == nil {
		fmt.Println("No valid fingerprint sidecar; adaptive mastering runs neutral. Run 'auralis analyze' first for adaptive results.")
	}

	m := metrics.NewMetrics()
	bus := events.NewEventBus(events.DefaultConfig())

	cache, err := chunkcache.New(chunkcache.Config{
		MaxSizeBytes: settings.CacheMaxSizeBytes,
		MaxEntries:   settings.CacheMaxEntries,
		TTL:          time.Duration(settings.CacheTTLSeconds * float64(time.Second)),
	}, m.Cache)
	if err != nil {
		return err
	}

	resolver := preset.NewResolver(settings.LimiterCeilingDBTP)
	if _, err := preset.LoadDirectory(resolver, settings.PresetsDir); err != nil {
		return err
	}

	sig, err := chunkcache.Signature(input)
	if err != nil {
		return err
	}

	pl := player.New(bus, m.Player, presetName, intensity)
	defer pl.Close()

	track := datastore.Track{
		ID:              1,
		Path:            input,
		Title:           filepath.Base(input),
		Format:          info.Format,
		SampleRate:      info.SampleRate,
		Channels:        info.Channels,
		DurationSeconds: info.DurationSeconds(),
	}
	if err := pl.Enqueue(track); err != nil {
		return err
	}
	if err := pl.Load(0); err != nil {
		return err
	}

	paramsFor := func(uint32) (*dsp.ProcessingParameters, error) {
		snap := pl.Snapshot()
		return resolver.Resolve(snap.Preset, fp, snap.Intensity)
	}
	cacheKey := func(paramsHash uint64, chunkIndex uint32) (string, string) {
		return chunkcache.Key(sig, paramsHash, chunkIndex), datastore.TrackGroup(track.ID)
	}

	renderer := render.New(cache, bus, m.Pipeline)
	job, err := renderer.Render(ctx, track.ID, dec, paramsFor, render.Options{
		ChunkSeconds:     settings.ChunkSeconds,
		OverlapSeconds:   settings.OverlapSeconds,
		ContextSeconds:   settings.ContextSeconds,
		LevelMaxChangeDB: settings.LevelMaxChangeDB,
	}, cacheKey)
	if err != nil {
		if ferr := pl.Fail(err.Error()); ferr != nil {
			return ferr
		}
		return err
	}
	if err := pl.Ready(); err != nil {
		return err
	}

	if err := writeStream(job.Stream(), pl, output, info); err != nil {
		job.Cancel()
		if ferr := pl.Fail(err.Error()); ferr != nil {
			return ferr
		}
		return err
	}

	if _, err := pl.TrackEnded(); err != nil {
		return err
	}

	fmt.Printf("Rendered %s (%d frames) -> %s\n", filepath.Base(input), info.TotalSamples, output)
	bus.Shutdown(time.Second)
	return nil
}

// writeStream pulls the rendered stream into a 16-bit WAV, feeding position
// updates to the player as it goes.
func writeStream(stream *render.Stream, pl *player.Player, output string, info audiofile.AudioInfo) error {
	f, err := os.Create(output) //nolint:gosec // user-chosen output path
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, info.SampleRate, 16, info.Channels, 1)

	const pullFrames = 8192
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: info.Channels, SampleRate: info.SampleRate},
	}

	for {
		samples, err := stream.NextFrames(pullFrames)
		if len(samples) > 0 {
			buf.Data = buf.Data[:0]
			for _, s := range samples {
				buf.Data = append(buf.Data, int(math.Round(s*32767)))
			}
			if werr := enc.Write(buf); werr != nil {
				_ = f.Close()
				return werr
			}
			pl.UpdatePosition(stream.PositionFrames())
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = f.Close()
			return err
		}
	}

	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
