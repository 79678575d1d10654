package dsp

import "math"

// kWeightingOffsetDB approximates the BS.1770 K-weighting constant applied
// to a mean-square measurement.
const kWeightingOffsetDB = -0.691

// MeasureLoudness returns a short-term loudness estimate in LUFS for
// interleaved samples. Channel mean squares are summed per BS.1770 channel
// summation with unity weights (no surround channels in this pipeline).
func MeasureLoudness(samples []float64, channels int) float64 {
	if len(samples) == 0 || channels <= 0 {
		return -70.0
	}
	frames := len(samples) / channels
	var sum float64
	for i := 0; i < frames*channels; i += channels {
		for ch := 0; ch < channels; ch++ {
			s := samples[i+ch]
			sum += s * s
		}
	}
	meanSquare := sum / float64(frames)
	if meanSquare <= 1e-12 {
		return -70.0
	}
	lufs := kWeightingOffsetDB + 10*math.Log10(meanSquare)
	if lufs < -70 {
		lufs = -70
	}
	return lufs
}

// loudnessMatchGain computes the scalar gain in dB that moves the measured
// loudness toward the target, clamped to ±maxGainDB. The continuity
// controller applies a second, cross-chunk clamp on top of this one.
func loudnessMatchGain(measuredLUFS, targetLUFS, maxGainDB float64) float64 {
	gain := targetLUFS - measuredLUFS
	if gain > maxGainDB {
		gain = maxGainDB
	}
	if gain < -maxGainDB {
		gain = -maxGainDB
	}
	return gain
}

// applyLoudnessMatch measures the chunk and applies the clamped make-up
// gain. Silence (at the -70 LUFS floor) is left untouched so digital black
// stays black.
func applyLoudnessMatch(samples []float64, channels int, p LoudnessParams) float64 {
	measured := MeasureLoudness(samples, channels)
	if measured <= -70 {
		return 0
	}
	gainDB := loudnessMatchGain(measured, p.TargetLUFS, p.MaxGainDB)
	if gainDB == 0 {
		return 0
	}
	gain := dbToLinear(gainDB)
	for i := range samples {
		samples[i] *= gain
	}
	return gainDB
}
