// Package dsp implements the per-chunk mastering stage graph.
package dsp

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/auralis-audio/auralis/internal/errors"
)

// EQBand is one point of the dense frequency-gain table driving the EQ stage.
type EQBand struct {
	FrequencyHz float64
	GainDB      float64
}

// EQParams holds the parametric EQ curve. Disabled is the explicit bypass
// sentinel; an empty curve with Enabled set is a configuration error.
type EQParams struct {
	Enabled bool
	Curve   []EQBand
}

// DynamicsParams holds wide-band compressor settings. State persists across
// the samples of one chunk and is seeded from the pre-roll context.
type DynamicsParams struct {
	Enabled     bool
	ThresholdDB float64
	Ratio       float64
	AttackMs    float64
	ReleaseMs   float64
	KneeDB      float64
	MakeupDB    float64
}

// StereoParams holds the M/S width stage settings. Width 1 is unity; 0
// collapses to mono, 2 is maximum widening. MonoBassHz below which the side
// channel is rolled off; 0 disables mono-bass.
type StereoParams struct {
	Enabled    bool
	Width      float64
	MonoBassHz float64
}

// LoudnessParams holds the target-loudness level match stage settings.
type LoudnessParams struct {
	Enabled       bool
	TargetLUFS    float64
	MaxGainDB     float64 // per-chunk gain clamp, applied by the loudness stage
}

// ProcessingParameters is the single canonical parameter type accepted by the
// stage graph. Every field has an explicit finite range; "disabled" is a
// sentinel flag on each stage, never NaN. Earlier layers holding a loose
// mapping must go through FromMap before reaching any stage.
type ProcessingParameters struct {
	InputGainDB      float64
	DCRemoval        bool
	EQ               EQParams
	Dynamics         DynamicsParams
	Stereo           StereoParams
	SaturationAmount float64 // [0, 1]; exactly 0 bypasses the stage
	Loudness         LoudnessParams
	LimiterCeilingDB float64 // dBTP, always engaged
}

// Parameter bounds enforced by Validate.
const (
	MaxInputGainDB  = 24.0
	MaxEQGainDB     = 24.0
	MaxRatio        = 20.0
	MaxMakeupDB     = 24.0
	MaxWidth        = 2.0
	MaxTargetLUFS   = 0.0
	MinTargetLUFS   = -70.0
	MaxAbsCeilingDB = 12.0
)

// Neutral returns a parameter set that passes audio through untouched apart
// from the always-on limiter at the given ceiling.
func Neutral(limiterCeilingDB float64) *ProcessingParameters {
	return &ProcessingParameters{
		LimiterCeilingDB: limiterCeilingDB,
	}
}

// Validate checks every field against its documented range.
func (p *ProcessingParameters) Validate() error {
	if !isFinite(p.InputGainDB) || math.Abs(p.InputGainDB) > MaxInputGainDB {
		return paramError("input gain %g dB outside [-%g, %g]", p.InputGainDB, MaxInputGainDB, MaxInputGainDB)
	}
	if p.EQ.Enabled {
		if len(p.EQ.Curve) == 0 {
			return paramError("EQ enabled with empty curve")
		}
		prev := 0.0
		for _, b := range p.EQ.Curve {
			if !isFinite(b.FrequencyHz) || b.FrequencyHz <= 0 {
				return paramError("EQ band frequency %g must be positive", b.FrequencyHz)
			}
			if b.FrequencyHz <= prev {
				return paramError("EQ curve frequencies must be strictly ascending")
			}
			prev = b.FrequencyHz
			if !isFinite(b.GainDB) || math.Abs(b.GainDB) > MaxEQGainDB {
				return paramError("EQ gain %g dB outside [-%g, %g]", b.GainDB, MaxEQGainDB, MaxEQGainDB)
			}
		}
	}
	if p.Dynamics.Enabled {
		d := p.Dynamics
		if !isFinite(d.ThresholdDB) || d.ThresholdDB > 0 || d.ThresholdDB < -80 {
			return paramError("dynamics threshold %g dB outside [-80, 0]", d.ThresholdDB)
		}
		if !isFinite(d.Ratio) || d.Ratio < 1 || d.Ratio > MaxRatio {
			return paramError("dynamics ratio %g outside [1, %g]", d.Ratio, MaxRatio)
		}
		if !isFinite(d.AttackMs) || d.AttackMs <= 0 || d.AttackMs > 500 {
			return paramError("dynamics attack %g ms outside (0, 500]", d.AttackMs)
		}
		if !isFinite(d.ReleaseMs) || d.ReleaseMs <= 0 || d.ReleaseMs > 5000 {
			return paramError("dynamics release %g ms outside (0, 5000]", d.ReleaseMs)
		}
		if !isFinite(d.KneeDB) || d.KneeDB < 0 || d.KneeDB > 24 {
			return paramError("dynamics knee %g dB outside [0, 24]", d.KneeDB)
		}
		if !isFinite(d.MakeupDB) || math.Abs(d.MakeupDB) > MaxMakeupDB {
			return paramError("dynamics makeup %g dB outside [-%g, %g]", d.MakeupDB, MaxMakeupDB, MaxMakeupDB)
		}
	}
	if p.Stereo.Enabled {
		if !isFinite(p.Stereo.Width) || p.Stereo.Width < 0 || p.Stereo.Width > MaxWidth {
			return paramError("stereo width %g outside [0, %g]", p.Stereo.Width, MaxWidth)
		}
		if !isFinite(p.Stereo.MonoBassHz) || p.Stereo.MonoBassHz < 0 || p.Stereo.MonoBassHz > 500 {
			return paramError("mono-bass cutoff %g Hz outside [0, 500]", p.Stereo.MonoBassHz)
		}
	}
	if !isFinite(p.SaturationAmount) || p.SaturationAmount < 0 || p.SaturationAmount > 1 {
		return paramError("saturation amount %g outside [0, 1]", p.SaturationAmount)
	}
	if p.Loudness.Enabled {
		if !isFinite(p.Loudness.TargetLUFS) || p.Loudness.TargetLUFS < MinTargetLUFS || p.Loudness.TargetLUFS > MaxTargetLUFS {
			return paramError("target loudness %g LUFS outside [%g, %g]", p.Loudness.TargetLUFS, MinTargetLUFS, MaxTargetLUFS)
		}
		if !isFinite(p.Loudness.MaxGainDB) || p.Loudness.MaxGainDB <= 0 || p.Loudness.MaxGainDB > 24 {
			return paramError("loudness max gain %g dB outside (0, 24]", p.Loudness.MaxGainDB)
		}
	}
	if !isFinite(p.LimiterCeilingDB) || p.LimiterCeilingDB > 0 || p.LimiterCeilingDB < -MaxAbsCeilingDB {
		return paramError("limiter ceiling %g dBTP outside [-%g, 0]", p.LimiterCeilingDB, MaxAbsCeilingDB)
	}
	return nil
}

// Fingerprint returns a stable hash of the full parameter set, used as part
// of rendered-chunk cache keys.
func (p *ProcessingParameters) Fingerprint() uint64 {
	h := fnv.New64a()
	buf := make([]byte, 8)

	writeF := func(v float64) {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		_, _ = h.Write(buf)
	}
	writeB := func(v bool) {
		if v {
			_, _ = h.Write([]byte{1})
		} else {
			_, _ = h.Write([]byte{0})
		}
	}

	writeF(p.InputGainDB)
	writeB(p.DCRemoval)
	writeB(p.EQ.Enabled)
	for _, b := range p.EQ.Curve {
		writeF(b.FrequencyHz)
		writeF(b.GainDB)
	}
	writeB(p.Dynamics.Enabled)
	writeF(p.Dynamics.ThresholdDB)
	writeF(p.Dynamics.Ratio)
	writeF(p.Dynamics.AttackMs)
	writeF(p.Dynamics.ReleaseMs)
	writeF(p.Dynamics.KneeDB)
	writeF(p.Dynamics.MakeupDB)
	writeB(p.Stereo.Enabled)
	writeF(p.Stereo.Width)
	writeF(p.Stereo.MonoBassHz)
	writeF(p.SaturationAmount)
	writeB(p.Loudness.Enabled)
	writeF(p.Loudness.TargetLUFS)
	writeF(p.Loudness.MaxGainDB)
	writeF(p.LimiterCeilingDB)
	return h.Sum64()
}

// Clone returns a deep copy.
func (p *ProcessingParameters) Clone() *ProcessingParameters {
	out := *p
	if p.EQ.Curve != nil {
		out.EQ.Curve = make([]EQBand, len(p.EQ.Curve))
		copy(out.EQ.Curve, p.EQ.Curve)
	}
	return &out
}

func paramError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("dsp").
		Category(errors.CategoryValidation).
		Build()
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
