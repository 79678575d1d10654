package fingerprint

import (
	"encoding/binary"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func sampleFingerprint() *Fingerprint {
	fp := &Fingerprint{
		SubBassPct: 5, BassPct: 25, LowMidPct: 20, MidPct: 25,
		UpperMidPct: 12, PresencePct: 8, AirPct: 5,
		LUFS: -14.2, CrestDB: 12.5, BassMidRatio: 0.67,
		TempoBPM: 124, RhythmStability: 0.8, TransientDensity: 0.3, SilenceRatio: 0.02,
		SpectralCentroid: 0.31, SpectralRolloff: 0.55, SpectralFlatness: 0.2,
		HarmonicRatio: 0.7, PitchStability: 0.85, ChromaEnergy: 0.4,
		DynamicRangeVariation: 0.25, LoudnessVariationStd: 0.3, PeakConsistency: 0.9,
		StereoWidth: 0.5, PhaseCorrelation: 0.75,
	}
	return fp
}

func TestSidecar_RoundTrip(t *testing.T) {
	fp := sampleFingerprint()
	mtime := time.Unix(1_700_000_000, 0)

	data := EncodeSidecar(fp, mtime)
	require.Len(t, data, 120)

	got, gotMtime, err := DecodeSidecar(data)
	require.NoError(t, err)
	assert.Equal(t, fp.Vector(), got.Vector(), "round-trip must be byte-identical")
	assert.True(t, mtime.Equal(gotMtime))
}

func TestSidecar_Validation(t *testing.T) {
	fp := sampleFingerprint()
	valid := EncodeSidecar(fp, time.Now())

	t.Run("wrong_magic", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint32(data[0:4], 0xDEADBEEF)
		_, _, err := DecodeSidecar(data)
		require.Error(t, err)
	})

	t.Run("wrong_dimension_count", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint32(data[12:16], 24)
		_, _, err := DecodeSidecar(data)
		require.Error(t, err)
	})

	t.Run("truncated", func(t *testing.T) {
		_, _, err := DecodeSidecar(valid[:119])
		require.Error(t, err)
	})

	t.Run("payload_bit_flip_fails_crc", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		data[40] ^= 0x01
		_, _, err := DecodeSidecar(data)
		require.Error(t, err)
	})
}

// Property: any single-bit flip anywhere in the payload region makes the
// decoder reject the sidecar.
func TestSidecar_BitFlipProperty(t *testing.T) {
	valid := EncodeSidecar(sampleFingerprint(), time.Now())

	rapid.Check(t, func(t *rapid.T) {
		byteIdx := rapid.IntRange(16, 115).Draw(t, "byte")
		bit := rapid.IntRange(0, 7).Draw(t, "bit")

		data := append([]byte(nil), valid...)
		data[byteIdx] ^= 1 << bit

		if _, _, err := DecodeSidecar(data); err == nil {
			t.Fatalf("flip of byte %d bit %d was not detected", byteIdx, bit)
		}
	})
}

func TestLoadSidecar(t *testing.T) {
	writeAudioStub := func(t *testing.T, dir string) string {
		t.Helper()
		path := dir + "/track.wav"
		require.NoError(t, os.WriteFile(path, []byte("RIFF....WAVE"), 0o644))
		return path
	}

	t.Run("valid_sidecar_loads", func(t *testing.T) {
		audio := writeAudioStub(t, t.TempDir())
		require.NoError(t, SaveSidecar(audio, sampleFingerprint()))

		fp, err := LoadSidecar(audio)
		require.NoError(t, err)
		require.NotNil(t, fp)
		assert.Equal(t, sampleFingerprint().Vector(), fp.Vector())
	})

	t.Run("missing_sidecar_is_nil", func(t *testing.T) {
		audio := writeAudioStub(t, t.TempDir())
		fp, err := LoadSidecar(audio)
		require.NoError(t, err)
		assert.Nil(t, fp)
	})

	t.Run("corrupt_sidecar_is_nil_not_error", func(t *testing.T) {
		audio := writeAudioStub(t, t.TempDir())
		require.NoError(t, SaveSidecar(audio, sampleFingerprint()))

		data, err := os.ReadFile(SidecarPath(audio))
		require.NoError(t, err)
		data[50] ^= 0xFF
		require.NoError(t, os.WriteFile(SidecarPath(audio), data, 0o644))

		fp, err := LoadSidecar(audio)
		require.NoError(t, err)
		assert.Nil(t, fp, "corrupt sidecar must be ignored, triggering recomputation")
	})

	t.Run("stale_sidecar_is_nil", func(t *testing.T) {
		audio := writeAudioStub(t, t.TempDir())
		data := EncodeSidecar(sampleFingerprint(), time.Now().Add(-24*time.Hour))
		require.NoError(t, os.WriteFile(SidecarPath(audio), data, 0o644))

		fp, err := LoadSidecar(audio)
		require.NoError(t, err)
		assert.Nil(t, fp, "sidecar older than the audio must be ignored")
	})

	t.Run("missing_audio_is_error", func(t *testing.T) {
		_, err := LoadSidecar(t.TempDir() + "/absent.wav")
		require.Error(t, err)
	})
}
