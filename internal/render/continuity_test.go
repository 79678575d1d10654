package render

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEqualPowerGains(t *testing.T) {
	t.Run("endpoints", func(t *testing.T) {
		a, b := equalPowerGains(0, 100)
		assert.InDelta(t, 1.0, a, 1e-12)
		assert.InDelta(t, 0.0, b, 1e-12)

		a, b = equalPowerGains(99, 100)
		assert.InDelta(t, 0.0, a, 1e-12)
		assert.InDelta(t, 1.0, b, 1e-12)
	})

	t.Run("power_complementary_and_monotone", func(t *testing.T) {
		prevA, prevB := math.Inf(1), math.Inf(-1)
		for n := 0; n < 512; n++ {
			a, b := equalPowerGains(n, 512)
			assert.InDelta(t, 1.0, a*a+b*b, 1e-12, "a^2+b^2 must be 1 at %d", n)
			assert.Less(t, a, prevA+1e-15, "a must not increase")
			assert.Greater(t, b, prevB-1e-15, "b must not decrease")
			prevA, prevB = a, b
		}
	})
}

// feed splits a track into declared+tail chunks the way the renderer does
// and runs them through one Continuity.
func feed(t *testing.T, track []float64, channels, chunkFrames, overlapFrames int, maxStepDB float64) []float64 {
	t.Helper()
	cont, err := NewContinuity(overlapFrames, channels, maxStepDB)
	require.NoError(t, err)

	totalFrames := len(track) / channels
	var out []float64
	for start := 0; start < totalFrames; start += chunkFrames {
		end := min(start+chunkFrames, totalFrames)
		tailEnd := min(end+overlapFrames, totalFrames)
		isLast := end == totalFrames

		chunk := track[start*channels : tailEnd*channels]
		emitted, err := cont.Append(chunk, tailEnd-end, 1, isLast)
		require.NoError(t, err)
		out = append(out, emitted...)
	}
	return out
}

func TestContinuity_Completeness(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		channels := rapid.SampledFrom([]int{1, 2}).Draw(t, "channels")
		totalFrames := rapid.IntRange(1, 40_000).Draw(t, "totalFrames")
		chunkFrames := rapid.IntRange(16, 8000).Draw(t, "chunkFrames")
		overlapFrames := rapid.IntRange(1, chunkFrames/2-1).Draw(t, "overlapFrames")
		if overlapFrames < 1 {
			t.Skip("chunk too small for overlap")
		}

		track := make([]float64, totalFrames*channels)
		for i := range track {
			track[i] = math.Sin(float64(i) * 0.01)
		}

		cont, err := NewContinuity(overlapFrames, channels, 3.0)
		if err != nil {
			t.Fatal(err)
		}

		var emitted int
		for start := 0; start < totalFrames; start += chunkFrames {
			end := min(start+chunkFrames, totalFrames)
			tailEnd := min(end+overlapFrames, totalFrames)
			isLast := end == totalFrames

			// The tail is clipped at EOF exactly like the renderer's
			// read, so the chunk before a short final remainder carries
			// a short tail.
			tailFrames := tailEnd - end

			out, err := cont.Append(track[start*channels:tailEnd*channels], tailFrames, 1, isLast)
			if err != nil {
				t.Fatal(err)
			}
			emitted += len(out) / channels
		}

		if emitted != totalFrames {
			t.Fatalf("emitted %d frames, want %d", emitted, totalFrames)
		}
	})
}

func TestContinuity_SteadySignalIsSeamless(t *testing.T) {
	// A steady sine split into chunks and reassembled must not show a
	// discontinuity at any boundary: per-sample delta bounded relative to
	// the local RMS.
	const sr = 44100
	const freq = 1000.0
	totalFrames := sr * 3
	track := make([]float64, totalFrames*2)
	amp := math.Pow(10, -6.0/20) // -6 dBFS
	for i := 0; i < totalFrames; i++ {
		v := amp * math.Sin(2*math.Pi*freq*float64(i)/sr)
		track[i*2] = v
		track[i*2+1] = v
	}

	out := feed(t, track, 2, sr, sr/10, 3.0)
	require.Len(t, out, len(track))

	localRMS := rms(track)
	for i := 2; i < len(out); i += 2 {
		delta := math.Abs(out[i] - out[i-2])
		// Adjacent samples of a 1 kHz sine at 44.1 kHz move at most
		// 2*pi*f/sr per step times the instantaneous amplitude, which the
		// equal-power fade of correlated material can raise to sqrt(2) of
		// nominal. Anything beyond that budget is a seam artifact.
		maxStep := math.Sqrt2*2*math.Pi*freq/sr*amp + 1e-3*localRMS
		require.LessOrEqual(t, delta, maxStep, "discontinuity at sample %d", i)
	}
}

func TestContinuity_LevelClamp(t *testing.T) {
	const channels = 1
	const chunkFrames = 1000

	cont, err := NewContinuity(100, channels, 3.0)
	require.NoError(t, err)

	loud := make([]float64, chunkFrames+100)
	quiet := make([]float64, chunkFrames+100)
	for i := range loud {
		loud[i] = 0.5 * math.Sin(float64(i)*0.1)
		quiet[i] = 0.005 * math.Sin(float64(i)*0.1) // 40 dB below
	}

	first, err := cont.Append(loud, 100, 1, false)
	require.NoError(t, err)
	firstRMS := rms(first)

	second, err := cont.Append(quiet, 100, 1, false)
	require.NoError(t, err)
	// Skip the crossfade region, which still carries the loud tail.
	secondRMS := rms(second[100:])

	stepDB := 20 * math.Log10(secondRMS/firstRMS)
	assert.GreaterOrEqual(t, stepDB, -3.5, "level step must be clamped near the 3 dB budget")
}

func TestContinuity_RejectsBadTails(t *testing.T) {
	cont, err := NewContinuity(100, 2, 3.0)
	require.NoError(t, err)

	t.Run("tail_longer_than_chunk", func(t *testing.T) {
		_, err := cont.Append(make([]float64, 50), 100, 1, false)
		require.Error(t, err)
	})

	t.Run("tail_longer_than_overlap", func(t *testing.T) {
		_, err := cont.Append(make([]float64, 4000), 500, 1, false)
		require.Error(t, err)
	})
}

func TestNewContinuity_Validation(t *testing.T) {
	_, err := NewContinuity(-1, 2, 3.0)
	require.Error(t, err)
	_, err = NewContinuity(100, 0, 3.0)
	require.Error(t, err)
}
