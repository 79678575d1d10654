// Package render drives the chunked mastering pipeline and assembles its
// output into one gapless stream.
package render

import (
	"math"

	"github.com/auralis-audio/auralis/internal/errors"
)

// Continuity assembles independently processed chunks into a seamless
// stream: an equal-power crossfade over the configured overlap, a rolling
// level clamp so no chunk boundary jumps more than the budget, and
// parameter hand-over at fade completion.
//
// The caller feeds chunks in ascending index order. Each chunk's samples
// must cover its declared range plus a tail of overlap frames (except the
// last chunk, whose tail is clipped at EOF). The concatenation of returned
// slices is exactly as long as the track.
type Continuity struct {
	overlapFrames    int
	channels         int
	maxLevelChangeDB float64

	// tail holds the previous chunk's processed overlap region, pending
	// crossfade with the next chunk.
	tail []float64

	// prevRMS tracks the level of recently emitted audio; <0 means no
	// audio emitted yet.
	prevRMS float64

	prevParamsHash uint64
	started        bool
}

// NewContinuity creates a controller for one stream.
func NewContinuity(overlapFrames, channels int, maxLevelChangeDB float64) (*Continuity, error) {
	if overlapFrames < 0 || channels <= 0 {
		return nil, errors.Newf("invalid continuity configuration: overlap=%d channels=%d",
			overlapFrames, channels).
			Component("render").
			Category(errors.CategoryContinuity).
			Build()
	}
	return &Continuity{
		overlapFrames:    overlapFrames,
		channels:         channels,
		maxLevelChangeDB: maxLevelChangeDB,
		prevRMS:          -1,
	}, nil
}

// equalPowerGains returns the fade-out and fade-in gains at position n of N.
// a decreases 1 to 0, b increases 0 to 1, and a^2 + b^2 == 1 throughout.
func equalPowerGains(n, total int) (a, b float64) {
	if total <= 1 {
		return 0, 1
	}
	theta := math.Pi / 2 * float64(n) / float64(total-1)
	return math.Cos(theta), math.Sin(theta)
}

// Append consumes one processed chunk and returns the stream samples it
// unlocks. declaredAndTail covers the declared range plus tailFrames of
// overlap; paramsHash identifies the parameter set that produced it so the
// controller can detect a mid-stream switch. The input is not retained and
// not modified.
func (c *Continuity) Append(declaredAndTail []float64, tailFrames int, paramsHash uint64, isLast bool) ([]float64, error) {
	if tailFrames*c.channels > len(declaredAndTail) {
		return nil, errors.Newf("tail of %d frames exceeds chunk of %d samples",
			tailFrames, len(declaredAndTail)).
			Component("render").
			Category(errors.CategoryContinuity).
			Build()
	}
	// A tail shorter than the overlap is legal only when it was clipped at
	// EOF, which happens exactly when the following chunk is the final,
	// shorter-than-overlap remainder. Longer tails are never legal.
	if tailFrames > c.overlapFrames {
		return nil, errors.Newf("chunk carries tail of %d frames, overlap is %d",
			tailFrames, c.overlapFrames).
			Component("render").
			Category(errors.CategoryContinuity).
			Build()
	}

	// Work on a private copy: the input may be a shared cache view.
	buf := make([]float64, len(declaredAndTail))
	copy(buf, declaredAndTail)

	c.applyLevelClamp(buf)

	declared := buf[:len(buf)-tailFrames*c.channels]

	if !c.started {
		c.started = true
		c.prevParamsHash = paramsHash
		c.retainTail(buf, tailFrames)
		return declared, nil
	}

	// Crossfade the previous tail into the head of this chunk's declared
	// region. The fade also performs the continuous-parameter hand-over
	// when paramsHash changed: the overlap blends the two parameterized
	// renderings, and everything after the fade is owned by the new
	// parameter set.
	fadeFrames := len(c.tail) / c.channels
	if fadeFrames*c.channels > len(declared) {
		return nil, errors.Newf("declared region shorter than crossfade overlap").
			Component("render").
			Category(errors.CategoryContinuity).
			Build()
	}
	for n := 0; n < fadeFrames; n++ {
		a, b := equalPowerGains(n, fadeFrames)
		for ch := 0; ch < c.channels; ch++ {
			i := n*c.channels + ch
			declared[i] = a*c.tail[i] + b*declared[i]
		}
	}

	c.prevParamsHash = paramsHash
	c.retainTail(buf, tailFrames)
	return declared, nil
}

// retainTail stores the chunk's overlap region for the next crossfade.
func (c *Continuity) retainTail(buf []float64, tailFrames int) {
	if tailFrames == 0 {
		c.tail = nil
		return
	}
	tail := buf[len(buf)-tailFrames*c.channels:]
	c.tail = make([]float64, len(tail))
	copy(c.tail, tail)
}

// applyLevelClamp scales the chunk so its RMS stays within the configured
// budget of the previously emitted audio, then folds the (possibly scaled)
// chunk level into the rolling measurement.
func (c *Continuity) applyLevelClamp(buf []float64) {
	rms := rms(buf)
	if rms <= 1e-9 {
		// Silence carries no level information; leave the rolling RMS
		// untouched so the next audible chunk is compared to audible
		// history.
		return
	}
	if c.prevRMS > 1e-9 {
		stepDB := 20 * math.Log10(rms/c.prevRMS)
		if math.Abs(stepDB) > c.maxLevelChangeDB {
			clampedDB := math.Copysign(c.maxLevelChangeDB, stepDB)
			gain := math.Pow(10, (clampedDB-stepDB)/20)
			for i := range buf {
				buf[i] *= gain
			}
			rms *= gain
		}
	}
	c.prevRMS = rms
}

// OverlapFrames returns the configured crossfade length.
func (c *Continuity) OverlapFrames() int {
	return c.overlapFrames
}

func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
