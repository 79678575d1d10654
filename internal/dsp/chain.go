package dsp

import (
	"context"
	"log/slog"

	"github.com/auralis-audio/auralis/internal/audiofile"
	"github.com/auralis-audio/auralis/internal/errors"
	"github.com/auralis-audio/auralis/internal/logging"
)

// Result reports what the stage graph did to one chunk.
type Result struct {
	// RepairedSamples counts non-finite samples replaced with silence.
	RepairedSamples int
	// LoudnessGainDB is the scalar gain the level-match stage applied,
	// before the continuity controller's cross-chunk clamp.
	LoudnessGainDB float64
}

// Chain applies the mastering stage graph to chunks. A Chain is stateless
// between chunks: all stage state lives for one Process call and is warmed
// by the pre-roll samples included in the chunk, which keeps every chunk a
// pure function of its input and parameters.
type Chain struct {
	logger *slog.Logger
}

// NewChain creates a stage graph.
func NewChain() *Chain {
	return &Chain{logger: logging.ForService("dsp")}
}

// Process applies all enabled stages in the canonical order, in place over
// chunk.Samples (pre-roll and tail included, so stateful stages are warm at
// the declared start and the crossfade tail matches the next chunk's
// processing). The sample count is preserved exactly.
func (c *Chain) Process(ctx context.Context, chunk *audiofile.ChunkData, p *ProcessingParameters) (Result, error) {
	var res Result

	if p == nil {
		return res, errors.Newf("nil processing parameters").
			Component("dsp").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := p.Validate(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	samples := chunk.Samples
	channels := chunk.Channels
	sr := chunk.SampleRate
	inLen := len(samples)

	// 1. Input gain / DC removal.
	if err := applyInputGain(samples, channels, sr, p.InputGainDB, p.DCRemoval); err != nil {
		return res, err
	}

	// 2. Parametric EQ.
	if p.EQ.Enabled {
		cascades, err := buildEQCascade(p.EQ.Curve, channels, sr)
		if err != nil {
			return res, err
		}
		applyEQ(samples, channels, cascades)
	}

	// 3. Dynamics.
	if p.Dynamics.Enabled {
		newCompressor(p.Dynamics, sr).process(samples, channels)
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	// 4. Stereo processor.
	if p.Stereo.Enabled {
		if err := applyStereo(samples, channels, sr, p.Stereo); err != nil {
			return res, err
		}
	}

	// 5. Saturation.
	applySaturation(samples, p.SaturationAmount)

	// 6. Target-loudness level match.
	if p.Loudness.Enabled {
		res.LoudnessGainDB = applyLoudnessMatch(samples, channels, p.Loudness)
	}

	// 7. True-peak limiter, always engaged.
	res.RepairedSamples = newLimiter(p.LimiterCeilingDB, sr).process(samples, channels)
	if res.RepairedSamples > 0 {
		c.logger.Warn("repaired non-finite samples",
			"chunk_index", chunk.Desc.ChunkIndex,
			"repaired", res.RepairedSamples)
	}

	if len(samples) != inLen {
		return res, errors.Newf("stage graph changed sample count: %d -> %d", inLen, len(samples)).
			Component("dsp").
			Category(errors.CategoryDSPNumeric).
			Build()
	}
	return res, nil
}
