// Package preset maps (preset name, fingerprint, intensity) to concrete
// processing parameters for the mastering graph.
package preset

import (
	"math"

	"github.com/auralis-audio/auralis/internal/dsp"
	"github.com/auralis-audio/auralis/internal/fingerprint"
)

// Definition is a value-type preset: the full-intensity targets of every
// control. Resolve scales each control linearly by intensity, so intensity 0
// is an exact no-op and every control grows monotonically with intensity.
type Definition struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Adaptive    bool    `yaml:"adaptive"`

	// EQ shelf/presence targets at intensity 1, dB.
	LowShelfDB  float64 `yaml:"low_shelf_db"`
	PresenceDB  float64 `yaml:"presence_db"`
	HighShelfDB float64 `yaml:"high_shelf_db"`

	// Compression depth [0, 1] maps onto threshold and ratio.
	CompressionDepth float64 `yaml:"compression_depth"`

	// Saturation amount [0, 1] at full intensity.
	Saturation float64 `yaml:"saturation"`

	// Stereo width delta from unity at full intensity, [-1, 1].
	WidthDelta float64 `yaml:"width_delta"`
	MonoBassHz float64 `yaml:"mono_bass_hz"`

	// Loudness matching. TargetLUFS 0 disables the stage.
	TargetLUFS float64 `yaml:"target_lufs"`
}

// Built-in presets. "adaptive" is the only one that consults the
// fingerprint; the others are intensity-sensitive but fingerprint-blind.
var builtins = map[string]Definition{
	"adaptive": {
		Name:        "adaptive",
		Description: "fingerprint-driven corrective mastering",
		Adaptive:    true,
		TargetLUFS:  -14,
	},
	"gentle": {
		Name:             "gentle",
		Description:      "light glue compression and a touch of low end",
		LowShelfDB:       1.5,
		PresenceDB:       0.5,
		CompressionDepth: 0.25,
		TargetLUFS:       -16,
	},
	"warm": {
		Name:             "warm",
		Description:      "low shelf, soft saturation, rolled-off top",
		LowShelfDB:       3,
		HighShelfDB:      -1.5,
		CompressionDepth: 0.35,
		Saturation:       0.4,
		MonoBassHz:       100,
		TargetLUFS:       -15,
	},
	"transparent": {
		Name:        "transparent",
		Description: "level matching only, no tonal change",
		TargetLUFS:  -14,
	},
}

// BuiltinNames returns the built-in preset names.
func BuiltinNames() []string {
	return []string{"adaptive", "gentle", "warm", "transparent"}
}

// EQ grid used by every resolved curve: a fixed dense frequency ladder so
// parameter fingerprints stay comparable across presets.
var eqGrid = []float64{40, 80, 160, 315, 630, 1250, 2500, 5000, 10000, 16000}

// curveFor spreads the shelf/presence targets over the grid: the low shelf
// shapes the bottom three points, presence the 2.5-5 kHz region, the high
// shelf the top two.
func curveFor(lowShelfDB, presenceDB, highShelfDB float64) []dsp.EQBand {
	curve := make([]dsp.EQBand, len(eqGrid))
	for i, freq := range eqGrid {
		var gain float64
		switch {
		case freq <= 160:
			gain = lowShelfDB
		case freq == 315:
			gain = lowShelfDB / 2
		case freq == 2500 || freq == 5000:
			gain = presenceDB
		case freq >= 10000:
			gain = highShelfDB
		}
		curve[i] = dsp.EQBand{FrequencyHz: freq, GainDB: gain}
	}
	return curve
}

// flatCurve reports whether every band is inside the resolver's flatness
// tolerance, in which case the EQ stage is left disabled.
func flatCurve(curve []dsp.EQBand) bool {
	for _, b := range curve {
		if math.Abs(b.GainDB) > 1e-9 {
			return false
		}
	}
	return true
}

// adapt derives full-intensity targets from the fingerprint. A nil
// fingerprint degenerates to the neutral profile so an un-fingerprinted
// track still plays.
func adapt(def Definition, fp *fingerprint.Fingerprint) Definition {
	if fp == nil {
		def.LowShelfDB = 0
		def.PresenceDB = 0
		def.HighShelfDB = 0
		def.CompressionDepth = 0
		def.Saturation = 0
		def.WidthDelta = 0
		def.TargetLUFS = 0
		return def
	}

	// Corrective EQ toward a balanced energy distribution. Reference
	// shares come from the profile of well-mastered material: bass bands
	// around 30%, presence around 8%, air around 5%.
	bassShare := float64(fp.SubBassPct + fp.BassPct)
	def.LowShelfDB = clamp((30-bassShare)*0.12, -4, 4)

	presenceShare := float64(fp.PresencePct)
	def.PresenceDB = clamp((8-presenceShare)*0.2, -3, 3)

	airShare := float64(fp.AirPct)
	def.HighShelfDB = clamp((5-airShare)*0.25, -3, 3)

	// Crest factor drives compression: already-squashed material is left
	// alone, dynamic material gets glue.
	def.CompressionDepth = clamp((float64(fp.CrestDB)-8)/20, 0, 0.7)

	// Dense, dark mixes benefit from gentle saturation.
	def.Saturation = clamp((0.5-float64(fp.SpectralCentroid))*0.5, 0, 0.35)

	// Narrow mixes are widened, over-wide ones pulled in.
	def.WidthDelta = clamp((0.4-float64(fp.StereoWidth))*0.5, -0.2, 0.25)
	if fp.PhaseCorrelation < 0.2 {
		// Phase trouble: never widen further.
		def.WidthDelta = math.Min(def.WidthDelta, 0)
	}
	if float64(fp.SubBassPct) > 10 {
		def.MonoBassHz = 120
	}
	return def
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
