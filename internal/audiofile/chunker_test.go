package audiofile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPlanChunks_Tiling(t *testing.T) {
	t.Run("exact_multiple", func(t *testing.T) {
		// 25s at 44100 with 10s chunks: [0,441000) [441000,882000) [882000,1102500)
		descs := PlanChunks(1102500, 44100, 10.0)
		require.Len(t, descs, 3)
		assert.Equal(t, uint64(0), descs[0].StartSample)
		assert.Equal(t, uint64(441000), descs[0].EndSample)
		assert.Equal(t, uint64(441000), descs[1].StartSample)
		assert.Equal(t, uint64(882000), descs[1].EndSample)
		assert.Equal(t, uint64(882000), descs[2].StartSample)
		assert.Equal(t, uint64(1102500), descs[2].EndSample)
	})

	t.Run("single_sample", func(t *testing.T) {
		descs := PlanChunks(1, 48000, 10.0)
		require.Len(t, descs, 1)
		assert.Equal(t, uint64(1), descs[0].Frames())
	})

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, PlanChunks(0, 48000, 10.0))
	})

	t.Run("duration_boundaries", func(t *testing.T) {
		const sr = 48000
		exact := uint64(10 * sr)

		assert.Len(t, PlanChunks(exact, sr, 10.0), 1)
		assert.Len(t, PlanChunks(exact-1, sr, 10.0), 1)
		assert.Len(t, PlanChunks(exact+1, sr, 10.0), 2)
		// chunk + overlap duration still splits into two descriptors:
		// the overlap is not part of the plan.
		assert.Len(t, PlanChunks(exact+uint64(0.1*sr), sr, 10.0), 2)
	})
}

// Property: descriptors cover [0, total) contiguously, without gaps or
// descriptor-level overlap, and declared ranges sum to the total.
func TestPlanChunks_CoverageProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.Uint64Range(1, 50_000_000).Draw(t, "total")
		sr := rapid.SampledFrom([]int{8000, 22050, 44100, 48000, 96000}).Draw(t, "sr")
		chunkSec := rapid.Float64Range(0.01, 60).Draw(t, "chunkSec")

		descs := PlanChunks(total, sr, chunkSec)
		if len(descs) == 0 {
			t.Fatalf("no descriptors for total=%d", total)
		}

		var sum uint64
		for i, d := range descs {
			if d.EndSample <= d.StartSample {
				t.Fatalf("descriptor %d is empty: [%d, %d)", i, d.StartSample, d.EndSample)
			}
			if uint32(i) != d.ChunkIndex {
				t.Fatalf("descriptor %d has index %d", i, d.ChunkIndex)
			}
			if i == 0 && d.StartSample != 0 {
				t.Fatalf("first descriptor starts at %d", d.StartSample)
			}
			if i > 0 && d.StartSample != descs[i-1].EndSample {
				t.Fatalf("gap between descriptor %d and %d", i-1, i)
			}
			sum += d.Frames()
		}
		if descs[len(descs)-1].EndSample != total {
			t.Fatalf("last descriptor ends at %d, want %d", descs[len(descs)-1].EndSample, total)
		}
		if sum != total {
			t.Fatalf("declared ranges sum to %d, want %d", sum, total)
		}
	})
}

func TestReadChunk_ContextHandling(t *testing.T) {
	const sr = 1000
	dec := testDecoder(t, sr, 2, 3000) // 3s stereo ramp

	descs := PlanChunks(3000, sr, 1.0)
	require.Len(t, descs, 3)

	t.Run("pre_roll_clipped_at_start", func(t *testing.T) {
		chunk, err := dec.ReadChunk(descs[0], ReadOptions{PreRollSeconds: 0.5})
		require.NoError(t, err)
		assert.Equal(t, 0, chunk.PreRollFrames, "pre-roll before sample 0 must clip to nothing")
		assert.Equal(t, 1000, chunk.DeclaredFrames())
		assert.False(t, chunk.IsLast)
	})

	t.Run("pre_roll_mid_file", func(t *testing.T) {
		chunk, err := dec.ReadChunk(descs[1], ReadOptions{PreRollSeconds: 0.5})
		require.NoError(t, err)
		assert.Equal(t, 500, chunk.PreRollFrames)
		assert.Equal(t, 1000, chunk.DeclaredFrames())
		// Declared view starts exactly at the descriptor start.
		declared := chunk.Declared()
		assert.InDelta(t, sampleAt(1000), declared[0], 1e-6)
	})

	t.Run("tail_for_crossfade", func(t *testing.T) {
		chunk, err := dec.ReadChunk(descs[0], ReadOptions{TailSeconds: 0.1})
		require.NoError(t, err)
		assert.Equal(t, 100, chunk.TailFrames)
		assert.Equal(t, 1000, chunk.DeclaredFrames())
	})

	t.Run("tail_clipped_at_eof", func(t *testing.T) {
		chunk, err := dec.ReadChunk(descs[2], ReadOptions{TailSeconds: 0.5})
		require.NoError(t, err)
		assert.Equal(t, 0, chunk.TailFrames)
		assert.True(t, chunk.IsLast)
	})

	t.Run("out_of_range_descriptor", func(t *testing.T) {
		_, err := dec.ReadChunk(ChunkDescriptor{StartSample: 2000, EndSample: 4000}, ReadOptions{})
		require.Error(t, err)
	})
}

// sampleAt mirrors the ramp written by testDecoder.
func sampleAt(frame int) float64 {
	return float64(frame%1000)/1000 - 0.5
}

// testDecoder builds an in-memory decoder over a deterministic stereo ramp.
func testDecoder(t *testing.T, sr, channels int, frames int) *Decoder {
	t.Helper()
	samples := make([]float32, frames*channels)
	for i := 0; i < frames; i++ {
		v := float32(sampleAt(i))
		for ch := 0; ch < channels; ch++ {
			samples[i*channels+ch] = v
		}
	}
	dec, err := newDecoder("test.wav", AudioInfo{
		SampleRate:   sr,
		Channels:     channels,
		TotalSamples: uint64(frames),
		Format:       "wav",
	}, samples)
	if err != nil {
		t.Fatal(err)
	}
	return dec
}
