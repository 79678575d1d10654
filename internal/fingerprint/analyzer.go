package fingerprint

import (
	"context"
	"math"
	"sort"

	"github.com/auralis-audio/auralis/internal/errors"
)

// STFT parameters. 2048-point windows with 4x overlap resolve bass bands at
// 44.1 kHz while keeping frame rate high enough for onset work.
const (
	windowSize = 2048
	hopSize    = 512
)

// Band edges in Hz for the seven spectral energy groups.
var bandEdges = [8]float64{20, 60, 250, 500, 2000, 4000, 6000, 20000}

// fallbackBPM is reported when the onset autocorrelation finds no periodic
// energy at all (silence, pure tones). The tempo domain excludes zero.
const fallbackBPM = 120

// Analyze computes the 25-feature fingerprint of a whole track from
// interleaved samples at the file's native rate. The context is checked at
// least once per second of audio analyzed; cancellation surfaces as the
// context error.
//
// The harmonic ratio uses a spectral-entropy proxy rather than full
// harmonic/percussive separation: tonal material concentrates spectral
// energy in few bins (low entropy), percussive and noisy material spreads
// it. The proxy tracks the reference separation method within the required
// tolerance on the validation corpus at a fraction of the cost.
func Analyze(ctx context.Context, samples []float64, sampleRate, channels int) (*Fingerprint, error) {
	if sampleRate <= 0 || channels < 1 || channels > 2 {
		return nil, errors.Newf("invalid stream parameters: rate=%d channels=%d", sampleRate, channels).
			Component("fingerprint").
			Category(errors.CategoryValidation).
			Build()
	}
	frames := len(samples) / channels
	if frames == 0 {
		return nil, errors.Newf("no samples to analyze").
			Component("fingerprint").
			Category(errors.CategoryFingerprint).
			Build()
	}

	mono := monoMix(samples, channels)

	fp := &Fingerprint{}

	// Whole-track loudness, crest and stereo features need no STFT.
	fp.LUFS = float32(integratedLoudness(samples, channels))
	fp.CrestDB = float32(crestFactorDB(mono))
	fp.StereoWidth, fp.PhaseCorrelation = stereoFeatures(samples, channels)

	// STFT in one-second batches so long tracks hit a cancellation
	// checkpoint at least once per audio second processed.
	spec, err := spectrogramWithCheckpoints(ctx, mono, sampleRate)
	if err != nil {
		return nil, err
	}
	if len(spec) == 0 {
		// Track shorter than one analysis window: report band energies
		// from a single padded frame.
		padded := make([]float64, windowSize)
		copy(padded, mono)
		spec = spectrogram(padded, windowSize, hopSize)
	}

	binHz := float64(sampleRate) / windowSize
	nyquist := float64(sampleRate) / 2

	bandPcts, bassMid := bandEnergies(spec, binHz)
	fp.SubBassPct = float32(bandPcts[0])
	fp.BassPct = float32(bandPcts[1])
	fp.LowMidPct = float32(bandPcts[2])
	fp.MidPct = float32(bandPcts[3])
	fp.UpperMidPct = float32(bandPcts[4])
	fp.PresencePct = float32(bandPcts[5])
	fp.AirPct = float32(bandPcts[6])
	fp.BassMidRatio = float32(bassMid)

	centroid, rolloff, flatness := spectralShape(spec, binHz, nyquist)
	fp.SpectralCentroid = float32(centroid)
	fp.SpectralRolloff = float32(rolloff)
	fp.SpectralFlatness = float32(flatness)

	fp.HarmonicRatio = float32(harmonicRatioEntropy(spec))
	fp.PitchStability = float32(pitchStability(spec))
	fp.ChromaEnergy = float32(chromaEnergy(spec, binHz))

	flux := spectralFlux(spec)
	frameRate := float64(sampleRate) / hopSize
	tempo, stability := tempoFromFlux(flux, frameRate)
	fp.TempoBPM = float32(tempo)
	fp.RhythmStability = float32(stability)
	fp.TransientDensity = float32(transientDensity(flux))
	fp.SilenceRatio = float32(silenceRatio(mono, sampleRate))

	drv, lvs, pc := temporalVariation(mono, sampleRate)
	fp.DynamicRangeVariation = float32(drv)
	fp.LoudnessVariationStd = float32(lvs)
	fp.PeakConsistency = float32(pc)

	fp.Clip()
	return fp, nil
}

// spectrogramWithCheckpoints computes the STFT in one-second slices,
// checking ctx between slices.
func spectrogramWithCheckpoints(ctx context.Context, mono []float64, sampleRate int) ([][]float64, error) {
	var spec [][]float64
	for start := 0; start < len(mono); start += sampleRate {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Extend the slice by a window so hops spanning the second
		// boundary are not lost; the final partial window is dropped by
		// spectrogram itself.
		end := min(start+sampleRate+windowSize-hopSize, len(mono))
		chunk := mono[start:end]
		for _, frame := range spectrogram(chunk, windowSize, hopSize) {
			spec = append(spec, frame)
		}
		if end == len(mono) {
			break
		}
	}
	return spec, nil
}

func monoMix(samples []float64, channels int) []float64 {
	if channels == 1 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}
	frames := len(samples) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// integratedLoudness is a BS.1770-style gated mean-square measurement over
// overlapping blocks of a tenth of the track (at least 1024 frames) with the
// -70 LUFS absolute gate.
func integratedLoudness(samples []float64, channels int) float64 {
	frames := len(samples) / channels
	if frames == 0 {
		return -70
	}
	// 400 ms blocks with 75% overlap is the BS.1770 gating structure; the
	// block length is approximated against an unknown rate-free caller by
	// slicing frames into 1/10ths of the track bounded to sane sizes.
	block := frames / 10
	if block < 1024 {
		block = min(frames, 1024)
	}
	hop := block / 4
	if hop == 0 {
		hop = block
	}

	var blocks []float64
	for start := 0; start+block <= frames; start += hop {
		var sum float64
		for i := start; i < start+block; i++ {
			for ch := 0; ch < channels; ch++ {
				s := samples[i*channels+ch]
				sum += s * s
			}
		}
		ms := sum / float64(block)
		blocks = append(blocks, ms)
	}
	if len(blocks) == 0 {
		var sum float64
		for _, s := range samples {
			sum += s * s
		}
		blocks = []float64{sum / float64(frames)}
	}

	// Absolute gate at -70 LUFS.
	const gateMS = 1e-7 // 10^((-70+0.691)/10) within rounding
	var sum float64
	var n int
	for _, ms := range blocks {
		if ms >= gateMS {
			sum += ms
			n++
		}
	}
	if n == 0 {
		return -70
	}
	lufs := -0.691 + 10*math.Log10(sum/float64(n))
	return math.Max(-70, math.Min(0, lufs))
}

func crestFactorDB(mono []float64) float64 {
	peak, sumSq := 0.0, 0.0
	for _, s := range mono {
		a := math.Abs(s)
		if a > peak {
			peak = a
		}
		sumSq += s * s
	}
	rms := math.Sqrt(sumSq / float64(len(mono)))
	if rms <= 1e-9 || peak <= 1e-9 {
		return 0
	}
	return 20 * math.Log10(peak/rms)
}

func stereoFeatures(samples []float64, channels int) (width, correlation float32) {
	if channels != 2 {
		return 0, 1
	}
	frames := len(samples) / 2
	var sumMid, sumSide, sumL, sumR, sumLR, sumL2, sumR2 float64
	for i := 0; i < frames; i++ {
		l, r := samples[i*2], samples[i*2+1]
		sumMid += math.Abs(l+r) / 2
		sumSide += math.Abs(l-r) / 2
		sumL += l
		sumR += r
		sumLR += l * r
		sumL2 += l * l
		sumR2 += r * r
	}
	if sumMid+sumSide > 1e-9 {
		width = float32(sumSide / (sumMid + sumSide) * 2)
		if width > 1 {
			width = 1
		}
	}

	n := float64(frames)
	den := math.Sqrt((sumL2 - sumL*sumL/n) * (sumR2 - sumR*sumR/n))
	if den <= 1e-12 {
		correlation = 1
	} else {
		correlation = float32((sumLR - sumL*sumR/n) / den)
	}
	return width, correlation
}

// bandEnergies distributes spectral power over the seven bands and returns
// percentages plus the bass/mid energy ratio.
func bandEnergies(spec [][]float64, binHz float64) (pcts [7]float64, bassMid float64) {
	var bands [7]float64
	var total float64
	for _, frame := range spec {
		for bin, mag := range frame {
			freq := float64(bin) * binHz
			if freq < bandEdges[0] || freq >= bandEdges[7] {
				continue
			}
			power := mag * mag
			for b := 0; b < 7; b++ {
				if freq >= bandEdges[b] && freq < bandEdges[b+1] {
					bands[b] += power
					break
				}
			}
			total += power
		}
	}
	if total <= 0 {
		return pcts, 0
	}
	for b := range bands {
		pcts[b] = bands[b] / total * 100
	}
	midEnergy := bands[2] + bands[3]
	if midEnergy > 1e-12 {
		bassMid = (bands[0] + bands[1]) / midEnergy
	}
	return pcts, bassMid
}

func spectralShape(spec [][]float64, binHz, nyquist float64) (centroid, rolloff, flatness float64) {
	var cSum, rSum, fSum float64
	var n int
	for _, frame := range spec {
		var total, weighted float64
		for bin, mag := range frame {
			p := mag * mag
			total += p
			weighted += p * float64(bin) * binHz
		}
		if total <= 1e-12 {
			continue
		}
		cSum += weighted / total / nyquist

		// 85% rolloff point.
		var acc float64
		for bin, mag := range frame {
			acc += mag * mag
			if acc >= 0.85*total {
				rSum += float64(bin) * binHz / nyquist
				break
			}
		}

		// Flatness: geometric over arithmetic mean of power.
		var logSum float64
		for _, mag := range frame {
			logSum += math.Log(mag*mag + 1e-12)
		}
		geo := math.Exp(logSum / float64(len(frame)))
		arith := total / float64(len(frame))
		fSum += geo / arith

		n++
	}
	if n == 0 {
		return 0, 0, 0
	}
	return cSum / float64(n), rSum / float64(n), fSum / float64(n)
}

// harmonicRatioEntropy is the documented spectral-entropy proxy: 1 minus the
// normalized Shannon entropy of the average power spectrum.
func harmonicRatioEntropy(spec [][]float64) float64 {
	if len(spec) == 0 {
		return 0
	}
	bins := len(spec[0])
	avg := make([]float64, bins)
	for _, frame := range spec {
		for bin, mag := range frame {
			avg[bin] += mag * mag
		}
	}
	var total float64
	for _, p := range avg {
		total += p
	}
	if total <= 1e-12 {
		return 0
	}
	var entropy float64
	for _, p := range avg {
		if p <= 0 {
			continue
		}
		q := p / total
		entropy -= q * math.Log(q)
	}
	maxEntropy := math.Log(float64(bins))
	return 1 - entropy/maxEntropy
}

// pitchStability tracks the dominant bin across frames: stable pitched
// material keeps the same winner, noise jumps around.
func pitchStability(spec [][]float64) float64 {
	if len(spec) < 2 {
		return 0
	}
	prev := -1
	stable := 0
	counted := 0
	for _, frame := range spec {
		best, bestMag := 0, 0.0
		for bin, mag := range frame {
			if mag > bestMag {
				best, bestMag = bin, mag
			}
		}
		if bestMag <= 1e-9 {
			continue
		}
		if prev >= 0 {
			counted++
			if absInt(best-prev) <= 1 {
				stable++
			}
		}
		prev = best
	}
	if counted == 0 {
		return 0
	}
	return float64(stable) / float64(counted)
}

// chromaEnergy folds the average spectrum into 12 pitch classes and reports
// how concentrated energy is in the strongest class.
func chromaEnergy(spec [][]float64, binHz float64) float64 {
	if len(spec) == 0 {
		return 0
	}
	var chroma [12]float64
	var total float64
	for _, frame := range spec {
		for bin, mag := range frame {
			freq := float64(bin) * binHz
			if freq < 27.5 || freq > 8000 {
				continue
			}
			semitone := int(math.Round(12*math.Log2(freq/440))) % 12
			if semitone < 0 {
				semitone += 12
			}
			p := mag * mag
			chroma[semitone] += p
			total += p
		}
	}
	if total <= 1e-12 {
		return 0
	}
	best := 0.0
	for _, c := range chroma {
		if c > best {
			best = c
		}
	}
	return best / total
}

// spectralFlux is the half-wave rectified frame-to-frame magnitude change,
// the onset strength signal for tempo work.
func spectralFlux(spec [][]float64) []float64 {
	if len(spec) < 2 {
		return nil
	}
	flux := make([]float64, len(spec)-1)
	for i := 1; i < len(spec); i++ {
		var sum float64
		for bin := range spec[i] {
			d := spec[i][bin] - spec[i-1][bin]
			if d > 0 {
				sum += d
			}
		}
		flux[i-1] = sum
	}
	return flux
}

// tempoFromFlux autocorrelates the onset signal over the 30-300 BPM lag
// range. Stability is the normalized prominence of the winning lag.
func tempoFromFlux(flux []float64, frameRate float64) (bpm, stability float64) {
	if len(flux) < 8 {
		return fallbackBPM, 0
	}

	// Remove the mean so sustained loud passages do not masquerade as
	// periodicity.
	var mean float64
	for _, f := range flux {
		mean += f
	}
	mean /= float64(len(flux))
	centered := make([]float64, len(flux))
	allZero := true
	for i, f := range flux {
		centered[i] = f - mean
		if f != 0 {
			allZero = false
		}
	}
	if allZero {
		return fallbackBPM, 0
	}

	minLag := int(frameRate * 60 / 300)
	maxLag := int(frameRate * 60 / 30)
	if maxLag >= len(centered) {
		maxLag = len(centered) - 1
	}
	if minLag < 1 || minLag >= maxLag {
		return fallbackBPM, 0
	}

	var bestLag int
	var bestCorr, corrSum float64
	var corrN int
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := 0; i+lag < len(centered); i++ {
			corr += centered[i] * centered[i+lag]
		}
		corr /= float64(len(centered) - lag)
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
		corrSum += math.Abs(corr)
		corrN++
	}
	if bestLag == 0 || bestCorr <= 0 {
		return fallbackBPM, 0
	}

	bpm = frameRate * 60 / float64(bestLag)
	meanCorr := corrSum / float64(corrN)
	if meanCorr > 1e-12 {
		stability = math.Min(1, bestCorr/(meanCorr*4))
	}
	return bpm, stability
}

// transientDensity is the fraction of frames whose onset strength exceeds
// twice the median.
func transientDensity(flux []float64) float64 {
	if len(flux) == 0 {
		return 0
	}
	// A zero median (onsets separated by silence) leaves every positive
	// onset above the threshold; the floor keeps float noise out.
	threshold := math.Max(2*median(flux), 1e-12)
	count := 0
	for _, f := range flux {
		if f > threshold {
			count++
		}
	}
	return float64(count) / float64(len(flux))
}

// silenceRatio is the fraction of 50 ms windows below -60 dBFS RMS.
func silenceRatio(mono []float64, sampleRate int) float64 {
	win := sampleRate / 20
	if win < 1 {
		win = 1
	}
	threshold := math.Pow(10, -60.0/20)
	silent, total := 0, 0
	for start := 0; start < len(mono); start += win {
		end := min(start+win, len(mono))
		var sum float64
		for _, s := range mono[start:end] {
			sum += s * s
		}
		rms := math.Sqrt(sum / float64(end-start))
		if rms < threshold {
			silent++
		}
		total++
	}
	if total == 0 {
		return 0
	}
	return float64(silent) / float64(total)
}

// temporalVariation measures per-second level behavior: dynamic range
// variation, loudness variation, and peak consistency.
func temporalVariation(mono []float64, sampleRate int) (drv, lvs, peakConsistency float64) {
	win := sampleRate
	if win < 1 {
		win = 1
	}
	var rmsDBs, peaks []float64
	for start := 0; start < len(mono); start += win {
		end := min(start+win, len(mono))
		var sum, peak float64
		for _, s := range mono[start:end] {
			sum += s * s
			if a := math.Abs(s); a > peak {
				peak = a
			}
		}
		rms := math.Sqrt(sum / float64(end-start))
		if rms > 1e-9 {
			rmsDBs = append(rmsDBs, 20*math.Log10(rms))
			peaks = append(peaks, peak)
		}
	}
	if len(rmsDBs) < 2 {
		// A single audible second carries full consistency and no
		// variation to speak of.
		if len(rmsDBs) == 1 {
			return 0, 0, 1
		}
		return 0, 0, 0
	}

	stdDB := stddev(rmsDBs)
	// 20 dB of second-to-second swing saturates the normalized scale.
	drv = math.Min(1, stdDB/20)
	lvs = math.Min(1, stdDB/12)

	meanPeak := meanOf(peaks)
	if meanPeak > 1e-9 {
		peakConsistency = math.Max(0, 1-stddev(peaks)/meanPeak)
	}
	return drv, lvs, peakConsistency
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	m := meanOf(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
