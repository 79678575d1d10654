package dsp

import "math"

// Limiter defaults. The look-ahead window bounds how early the gain computer
// reacts to an approaching peak; because chunks are processed offline the
// look-ahead introduces no output latency.
const (
	DefaultLookAheadMs = 2.0
	truePeakOversample = 4
)

// limiter is a look-ahead true-peak limiter. It is the last stage of the
// graph and the last line of defense against non-finite samples: any NaN or
// Inf is replaced with silence and counted.
type limiter struct {
	ceilingLin  float64
	lookAhead   int // frames
	releaseCoef float64
}

func newLimiter(ceilingDB float64, sampleRate int) *limiter {
	la := int(math.Round(DefaultLookAheadMs / 1000.0 * float64(sampleRate)))
	if la < 1 {
		la = 1
	}
	return &limiter{
		ceilingLin: dbToLinear(ceilingDB),
		lookAhead:  la,
		// ~50 ms release keeps gain recovery inaudible.
		releaseCoef: math.Exp(-1.0 / (0.05 * float64(sampleRate))),
	}
}

// truePeakAt estimates the inter-sample peak of one frame by linear
// interpolation at 4x between the neighboring frames, max across channels.
func truePeakAt(samples []float64, channels, frame, frames int) float64 {
	peak := 0.0
	for ch := 0; ch < channels; ch++ {
		cur := samples[frame*channels+ch]
		if a := math.Abs(cur); a > peak {
			peak = a
		}
		if frame+1 < frames {
			next := samples[(frame+1)*channels+ch]
			for k := 1; k < truePeakOversample; k++ {
				t := float64(k) / truePeakOversample
				v := cur + (next-cur)*t
				if a := math.Abs(v); a > peak {
					peak = a
				}
			}
		}
	}
	return peak
}

// process scrubs non-finite samples, then applies limiting in place.
// Returns the number of repaired samples.
func (l *limiter) process(samples []float64, channels int) int {
	repaired := 0
	for i, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			samples[i] = 0
			repaired++
		}
	}

	frames := len(samples) / channels
	if frames == 0 {
		return repaired
	}

	// Per-frame true-peak estimate.
	peaks := make([]float64, frames)
	for f := 0; f < frames; f++ {
		peaks[f] = truePeakAt(samples, channels, f, frames)
	}

	// Sliding-window maximum over [f, f+lookAhead) with a monotonic deque,
	// so the gain computer sees a peak before it arrives.
	winMax := make([]float64, frames)
	deque := make([]int, 0, l.lookAhead+1)
	head := 0
	for f := frames - 1; f >= 0; f-- {
		// The window for frame f covers f .. f+lookAhead-1; walk backwards
		// and retire indices that fell out of the window.
		for len(deque) > head && deque[head] >= f+l.lookAhead {
			head++
		}
		for len(deque) > head && peaks[deque[len(deque)-1]] <= peaks[f] {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, f)
		winMax[f] = peaks[deque[head]]
	}

	// Gain computer: instantaneous attack (the window already looks ahead),
	// exponential release toward unity.
	gain := 1.0
	for f := 0; f < frames; f++ {
		target := 1.0
		if winMax[f] > l.ceilingLin {
			target = l.ceilingLin / winMax[f]
		}
		if target < gain {
			gain = target
		} else {
			gain = l.releaseCoef*gain + (1-l.releaseCoef)*target
			if gain > 1 {
				gain = 1
			}
		}
		for ch := 0; ch < channels; ch++ {
			samples[f*channels+ch] *= gain
		}
	}

	// Hard clamp: rounding in the gain path must never let a sample cross
	// the ceiling.
	for i, s := range samples {
		if s > l.ceilingLin {
			samples[i] = l.ceilingLin
		} else if s < -l.ceilingLin {
			samples[i] = -l.ceilingLin
		}
	}

	return repaired
}
