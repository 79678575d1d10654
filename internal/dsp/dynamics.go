package dsp

import "math"

// compressor is a wide-band feed-forward compressor with a peak envelope
// follower and a soft knee. Gain reduction is computed in the dB domain and
// shared across channels so the stereo image does not wander under pumping.
type compressor struct {
	params DynamicsParams

	attackCoef  float64
	releaseCoef float64
	makeupLin   float64

	envelope float64 // linear peak envelope, carried across samples
}

func newCompressor(p DynamicsParams, sampleRate int) *compressor {
	sr := float64(sampleRate)
	return &compressor{
		params:      p,
		attackCoef:  math.Exp(-1.0 / (p.AttackMs / 1000.0 * sr)),
		releaseCoef: math.Exp(-1.0 / (p.ReleaseMs / 1000.0 * sr)),
		makeupLin:   dbToLinear(p.MakeupDB),
	}
}

// gainReductionDB computes the static curve value for a level in dB.
func (c *compressor) gainReductionDB(levelDB float64) float64 {
	t := c.params.ThresholdDB
	knee := c.params.KneeDB
	over := levelDB - t

	switch {
	case knee > 0 && over > -knee/2 && over < knee/2:
		// Soft knee: quadratic interpolation through the knee region.
		x := over + knee/2
		return (1/c.params.Ratio - 1) * x * x / (2 * knee)
	case over >= knee/2:
		return (1/c.params.Ratio - 1) * over
	default:
		return 0
	}
}

// process applies compression in place over interleaved samples.
func (c *compressor) process(samples []float64, channels int) {
	for i := 0; i < len(samples); i += channels {
		// Peak detect across channels.
		peak := 0.0
		for ch := 0; ch < channels; ch++ {
			if a := math.Abs(samples[i+ch]); a > peak {
				peak = a
			}
		}

		// Envelope follower: fast attack, slow release.
		if peak > c.envelope {
			c.envelope = c.attackCoef*c.envelope + (1-c.attackCoef)*peak
		} else {
			c.envelope = c.releaseCoef*c.envelope + (1-c.releaseCoef)*peak
		}

		gain := dbToLinear(c.gainReductionDB(linearToDb(c.envelope))) * c.makeupLin
		for ch := 0; ch < channels; ch++ {
			samples[i+ch] *= gain
		}
	}
}
