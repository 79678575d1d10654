// Package fingerprint computes the 25-dimensional perceptual feature vector
// that drives adaptive mastering, and its on-disk sidecar encoding.
package fingerprint

import "math"

// NumFeatures is the fixed dimensionality of a fingerprint.
const NumFeatures = 25

// AnalyzerVersion participates in the compute-once lifecycle: a fingerprint
// is valid for one (file content, analyzer version) pair.
const AnalyzerVersion = 1

// Fingerprint is the ordered 25-feature perceptual description of a whole
// track. Field order is the serialization order; Vector and FromVector are
// the only code allowed to depend on it.
type Fingerprint struct {
	// Spectral energy distribution, percent of total energy. Sums to ~100.
	SubBassPct  float32
	BassPct     float32
	LowMidPct   float32
	MidPct      float32
	UpperMidPct float32
	PresencePct float32
	AirPct      float32

	// Loudness and dynamics.
	LUFS         float32 // integrated, [-70, 0]
	CrestDB      float32 // [0, 40]
	BassMidRatio float32 // [0, 10]

	// Temporal / rhythm.
	TempoBPM         float32 // [30, 300], the analyzer's lag range
	RhythmStability  float32 // [0, 1]
	TransientDensity float32 // [0, 1]
	SilenceRatio     float32 // [0, 1]

	// Spectral shape, normalized to the Nyquist frequency.
	SpectralCentroid float32 // [0, 1]
	SpectralRolloff  float32 // [0, 1]
	SpectralFlatness float32 // [0, 1]

	// Harmonic / pitch.
	HarmonicRatio  float32 // [0, 1]
	PitchStability float32 // [0, 1]
	ChromaEnergy   float32 // [0, 1]

	// Temporal variation.
	DynamicRangeVariation float32 // [0, 1]
	LoudnessVariationStd  float32 // [0, 1]
	PeakConsistency       float32 // [0, 1]

	// Stereo field.
	StereoWidth      float32 // [0, 1]
	PhaseCorrelation float32 // [-1, 1]
}

// featureKeys lists the stable key order shared by serialization and
// diagnostics output.
var featureKeys = [NumFeatures]string{
	"sub_bass_pct", "bass_pct", "low_mid_pct", "mid_pct", "upper_mid_pct", "presence_pct", "air_pct",
	"lufs", "crest_db", "bass_mid_ratio",
	"tempo_bpm", "rhythm_stability", "transient_density", "silence_ratio",
	"spectral_centroid", "spectral_rolloff", "spectral_flatness",
	"harmonic_ratio", "pitch_stability", "chroma_energy",
	"dynamic_range_variation", "loudness_variation_std", "peak_consistency",
	"stereo_width", "phase_correlation",
}

// Keys returns the feature names in serialization order.
func Keys() [NumFeatures]string {
	return featureKeys
}

// Vector returns the features in the fixed key order.
func (f *Fingerprint) Vector() [NumFeatures]float32 {
	return [NumFeatures]float32{
		f.SubBassPct, f.BassPct, f.LowMidPct, f.MidPct, f.UpperMidPct, f.PresencePct, f.AirPct,
		f.LUFS, f.CrestDB, f.BassMidRatio,
		f.TempoBPM, f.RhythmStability, f.TransientDensity, f.SilenceRatio,
		f.SpectralCentroid, f.SpectralRolloff, f.SpectralFlatness,
		f.HarmonicRatio, f.PitchStability, f.ChromaEnergy,
		f.DynamicRangeVariation, f.LoudnessVariationStd, f.PeakConsistency,
		f.StereoWidth, f.PhaseCorrelation,
	}
}

// FromVector rebuilds a fingerprint from a serialized vector.
func FromVector(v [NumFeatures]float32) *Fingerprint {
	return &Fingerprint{
		SubBassPct: v[0], BassPct: v[1], LowMidPct: v[2], MidPct: v[3],
		UpperMidPct: v[4], PresencePct: v[5], AirPct: v[6],
		LUFS: v[7], CrestDB: v[8], BassMidRatio: v[9],
		TempoBPM: v[10], RhythmStability: v[11], TransientDensity: v[12], SilenceRatio: v[13],
		SpectralCentroid: v[14], SpectralRolloff: v[15], SpectralFlatness: v[16],
		HarmonicRatio: v[17], PitchStability: v[18], ChromaEnergy: v[19],
		DynamicRangeVariation: v[20], LoudnessVariationStd: v[21], PeakConsistency: v[22],
		StereoWidth: v[23], PhaseCorrelation: v[24],
	}
}

// featureDomains pins the [min, max] range of every feature in key order.
var featureDomains = [NumFeatures][2]float32{
	{0, 100}, {0, 100}, {0, 100}, {0, 100}, {0, 100}, {0, 100}, {0, 100},
	{-70, 0}, {0, 40}, {0, 10},
	{30, 300}, {0, 1}, {0, 1}, {0, 1},
	{0, 1}, {0, 1}, {0, 1},
	{0, 1}, {0, 1}, {0, 1},
	{0, 1}, {0, 1}, {0, 1},
	{0, 1}, {-1, 1},
}

// Clip forces every feature into its documented domain as the last line of
// defense, replacing non-finite values with the domain minimum.
func (f *Fingerprint) Clip() {
	v := f.Vector()
	for i := range v {
		lo, hi := featureDomains[i][0], featureDomains[i][1]
		x := v[i]
		switch {
		case math.IsNaN(float64(x)) || math.IsInf(float64(x), 0):
			v[i] = lo
		case x < lo:
			v[i] = lo
		case x > hi:
			v[i] = hi
		}
	}
	*f = *FromVector(v)
}

// InDomain reports whether every feature lies inside its documented range.
func (f *Fingerprint) InDomain() bool {
	v := f.Vector()
	for i := range v {
		x := float64(v[i])
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
		if v[i] < featureDomains[i][0] || v[i] > featureDomains[i][1] {
			return false
		}
	}
	return true
}

// Hash returns a stable 64-bit digest of the vector, used in cache keys.
func (f *Fingerprint) Hash() uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	var h uint64 = offset64
	for _, x := range f.Vector() {
		bits := math.Float32bits(x)
		for shift := 0; shift < 32; shift += 8 {
			h ^= uint64(bits >> shift & 0xff)
			h *= prime64
		}
	}
	return h
}
