// Package audiofile decodes audio files to PCM frames and exposes positional
// chunk extraction for the mastering pipeline.
package audiofile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/auralis-audio/auralis/internal/errors"
)

// AudioInfo describes a decoded audio file. TotalSamples counts frames, not
// interleaved samples.
type AudioInfo struct {
	SampleRate   int
	Channels     int
	TotalSamples uint64
	Format       string
}

// DurationSeconds returns the track duration derived from the frame count.
func (i AudioInfo) DurationSeconds() float64 {
	if i.SampleRate <= 0 {
		return 0
	}
	return float64(i.TotalSamples) / float64(i.SampleRate)
}

// Decoder holds a fully decoded file. Decoding up front keeps chunk reads
// sample-accurate for formats without native seeking (FLAC frames, streamed
// WAV) at the cost of holding the PCM in memory for the duration of a render.
type Decoder struct {
	info AudioInfo
	path string

	// samples is interleaved PCM normalized to [-1, 1], float32 to halve
	// resident size; chunk reads widen to float64.
	samples []float32
}

// Supported file extensions.
const (
	extWAV  = ".wav"
	extFLAC = ".flac"
)

// Open decodes the file at path. The error category identifies the failure
// kind: missing file, unsupported container, malformed header, or corrupt
// frame data.
func Open(path string) (*Decoder, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.New(err).
			Component("audiofile").
			Category(errors.CategoryDecodeMissing).
			FileContext(path, 0).
			Build()
	}
	if fi.IsDir() {
		return nil, errors.Newf("path %s is a directory", path).
			Component("audiofile").
			Category(errors.CategoryDecodeMissing).
			Build()
	}
	if fi.Size() == 0 {
		return nil, errors.Newf("file %s is empty", filepath.Base(path)).
			Component("audiofile").
			Category(errors.CategoryDecodeCorrupt).
			FileContext(path, 0).
			Build()
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case extWAV:
		return openWAV(path, fi.Size())
	case extFLAC:
		return openFLAC(path, fi.Size())
	default:
		return nil, errors.Newf("unsupported audio format: %s", filepath.Ext(path)).
			Component("audiofile").
			Category(errors.CategoryDecodeUnsupported).
			FileContext(path, fi.Size()).
			Build()
	}
}

// Info returns the decoded file's parameters.
func (d *Decoder) Info() AudioInfo {
	return d.info
}

// Path returns the decoded file's path.
func (d *Decoder) Path() string {
	return d.path
}

// ReadAll returns the full interleaved PCM widened to float64. Used by the
// fingerprint analyzer, which consumes whole tracks.
func (d *Decoder) ReadAll() []float64 {
	out := make([]float64, len(d.samples))
	for i, s := range d.samples {
		out[i] = float64(s)
	}
	return out
}

// GetAudioInfo decodes the whole file through Open and reports its
// parameters. Convenience for validation paths that do not need samples.
func GetAudioInfo(path string) (AudioInfo, error) {
	d, err := Open(path)
	if err != nil {
		return AudioInfo{}, err
	}
	return d.info, nil
}

// newDecoder validates decoded stream parameters shared by all formats.
func newDecoder(path string, info AudioInfo, samples []float32) (*Decoder, error) {
	if info.SampleRate <= 0 {
		return nil, errors.Newf("invalid sample rate %d", info.SampleRate).
			Component("audiofile").
			Category(errors.CategoryDecodeFormat).
			Build()
	}
	if info.Channels != 1 && info.Channels != 2 {
		return nil, errors.Newf("unsupported channel count %d", info.Channels).
			Component("audiofile").
			Category(errors.CategoryDecodeUnsupported).
			Build()
	}
	if uint64(len(samples)) != info.TotalSamples*uint64(info.Channels) {
		return nil, errors.Newf("decoded %d samples, header declares %d frames x %d channels",
			len(samples), info.TotalSamples, info.Channels).
			Component("audiofile").
			Category(errors.CategoryDecodeCorrupt).
			Build()
	}
	return &Decoder{info: info, path: path, samples: samples}, nil
}

func decodeError(path string, size int64, err error) error {
	return errors.Newf("decoding %s: %w", filepath.Base(path), err).
		Component("audiofile").
		Category(errors.CategoryDecodeCorrupt).
		FileContext(path, size).
		Build()
}

// fmtFrames formats a frame count with its duration for log output.
func fmtFrames(frames uint64, sr int) string {
	if sr <= 0 {
		return fmt.Sprintf("%d frames", frames)
	}
	return fmt.Sprintf("%d frames (%.2fs)", frames, float64(frames)/float64(sr))
}
