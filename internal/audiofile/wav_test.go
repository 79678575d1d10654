package audiofile

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralis-audio/auralis/internal/errors"
)

// writeTestWAV writes a 16-bit PCM WAV of the given samples (interleaved,
// [-1, 1]) and returns its path.
func writeTestWAV(t *testing.T, sr, channels int, samples []float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, sr, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sr},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = int(math.Round(s * 32767))
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func TestOpen_WAVRoundTrip(t *testing.T) {
	const sr = 8000
	frames := sr / 2 // 0.5s
	samples := make([]float64, frames*2)
	for i := 0; i < frames; i++ {
		v := 0.25 * math.Sin(2*math.Pi*440*float64(i)/float64(sr))
		samples[i*2] = v
		samples[i*2+1] = -v
	}
	path := writeTestWAV(t, sr, 2, samples)

	dec, err := Open(path)
	require.NoError(t, err)

	info := dec.Info()
	assert.Equal(t, sr, info.SampleRate)
	assert.Equal(t, 2, info.Channels)
	assert.Equal(t, uint64(frames), info.TotalSamples)
	assert.Equal(t, "wav", info.Format)
	assert.InDelta(t, 0.5, info.DurationSeconds(), 1e-9)

	all := dec.ReadAll()
	require.Len(t, all, frames*2)
	// 16-bit quantization bounds the round-trip error.
	for i := 0; i < 200; i++ {
		assert.InDelta(t, samples[i], all[i], 1.0/32768+1e-9)
	}
}

func TestOpen_Failures(t *testing.T) {
	t.Run("missing_file", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "nope.wav"))
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryDecodeMissing))
	})

	t.Run("unsupported_extension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "track.ogg")
		require.NoError(t, os.WriteFile(path, []byte("OggS"), 0o644))
		_, err := Open(path)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryDecodeUnsupported))
	})

	t.Run("empty_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.wav")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		_, err := Open(path)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryDecodeCorrupt))
	})

	t.Run("garbage_header", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "garbage.wav")
		require.NoError(t, os.WriteFile(path, []byte("not audio at all, definitely"), 0o644))
		_, err := Open(path)
		require.Error(t, err)
		assert.True(t, errors.IsDecode(err))
	})
}

func TestGetAudioInfo(t *testing.T) {
	path := writeTestWAV(t, 44100, 1, make([]float64, 44100))
	info, err := GetAudioInfo(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(44100), info.TotalSamples)
	assert.Equal(t, 1, info.Channels)
}
