package audiofile

import (
	"math"
	"os"

	"github.com/go-audio/wav"
)

// openWAV decodes a RIFF/WAVE file fully into normalized float32 PCM.
func openWAV(path string, size int64) (*Decoder, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the catalog or CLI args
	if err != nil {
		return nil, decodeError(path, size, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, decodeError(path, size, errInvalidWAV)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, decodeError(path, size, err)
	}

	channels := buf.Format.NumChannels
	sampleRate := buf.Format.SampleRate

	// Normalize integer PCM to [-1, 1] by the declared bit depth.
	scale := float32(1.0)
	if dec.BitDepth > 0 && dec.BitDepth <= 32 {
		scale = float32(math.Pow(2, float64(dec.BitDepth-1)))
	}
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}

	if channels > 0 {
		// Truncate a trailing partial frame rather than failing the file.
		samples = samples[:len(samples)/channels*channels]
	}

	info := AudioInfo{
		SampleRate:   sampleRate,
		Channels:     channels,
		TotalSamples: uint64(len(samples) / max(channels, 1)),
		Format:       "wav",
	}
	return newDecoder(path, info, samples)
}

var errInvalidWAV = errInvalid("not a valid RIFF/WAVE file")

type errInvalid string

func (e errInvalid) Error() string { return string(e) }
