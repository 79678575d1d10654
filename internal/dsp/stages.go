package dsp

import (
	"math"

	"github.com/auralis-audio/auralis/internal/dsp/equalizer"
)

// dbToLinear converts decibels to linear amplitude.
func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20.0)
}

// linearToDb converts linear amplitude to decibels with a practical floor.
func linearToDb(linear float64) float64 {
	if linear <= 0 {
		return -120.0
	}
	return 20.0 * math.Log10(linear)
}

// applyInputGain scales all samples and optionally removes DC with a 20 Hz
// high-pass, one filter instance per channel.
func applyInputGain(samples []float64, channels, sampleRate int, gainDB float64, dcRemoval bool) error {
	gain := dbToLinear(gainDB)
	if gainDB != 0 {
		for i := range samples {
			samples[i] *= gain
		}
	}
	if !dcRemoval {
		return nil
	}

	filters := make([]*equalizer.Filter, channels)
	for ch := range filters {
		f, err := equalizer.NewHighPass(float64(sampleRate), 20, 0.707, 1)
		if err != nil {
			return err
		}
		filters[ch] = f
	}
	for i := 0; i < len(samples); i += channels {
		for ch := 0; ch < channels; ch++ {
			samples[i+ch] = filters[ch].Apply(samples[i+ch])
		}
	}
	return nil
}

// applySaturation applies a monotone odd-symmetric tanh transfer blended by
// amount. Amount 0 bypasses exactly; the caller guarantees amount in [0, 1].
func applySaturation(samples []float64, amount float64) {
	if amount == 0 {
		return
	}
	drive := 1.0 + 4.0*amount
	norm := math.Tanh(drive)
	for i, s := range samples {
		shaped := math.Tanh(drive*s) / norm
		samples[i] = (1-amount)*s + amount*shaped
	}
}

// applyStereo performs the M/S width scaling and optional mono-bass. Mono
// input passes through untouched.
func applyStereo(samples []float64, channels, sampleRate int, p StereoParams) error {
	if channels != 2 {
		return nil
	}

	var sideHP *equalizer.Filter
	if p.MonoBassHz > 0 {
		f, err := equalizer.NewHighPass(float64(sampleRate), p.MonoBassHz, 0.707, 1)
		if err != nil {
			return err
		}
		sideHP = f
	}

	for i := 0; i < len(samples); i += 2 {
		l, r := samples[i], samples[i+1]
		mid := (l + r) * 0.5
		side := (l - r) * 0.5

		side *= p.Width
		if sideHP != nil {
			side = sideHP.Apply(side)
		}

		samples[i] = mid + side
		samples[i+1] = mid - side
	}
	return nil
}

// buildEQCascade turns the dense gain table into a shelving/peaking biquad
// cascade: a low shelf at the first band, a high shelf at the last, peaking
// filters between. Bands within 0.01 dB of flat are skipped. One cascade per
// channel so filter state never crosses channels.
func buildEQCascade(curve []EQBand, channels, sampleRate int) ([][]*equalizer.Filter, error) {
	const flatEps = 0.01
	nyquist := float64(sampleRate) / 2

	cascades := make([][]*equalizer.Filter, channels)
	for ch := 0; ch < channels; ch++ {
		var cascade []*equalizer.Filter
		for i, band := range curve {
			if math.Abs(band.GainDB) < flatEps || band.FrequencyHz >= nyquist {
				continue
			}

			var (
				f   *equalizer.Filter
				err error
			)
			switch {
			case i == 0:
				f, err = equalizer.NewLowShelf(float64(sampleRate), band.FrequencyHz, 0.707, band.GainDB, 1)
			case i == len(curve)-1:
				f, err = equalizer.NewHighShelf(float64(sampleRate), band.FrequencyHz, 0.707, band.GainDB, 1)
			default:
				q := bandQ(curve, i)
				f, err = equalizer.NewPeaking(float64(sampleRate), band.FrequencyHz, q, band.GainDB, 1)
			}
			if err != nil {
				return nil, err
			}
			cascade = append(cascade, f)
		}
		cascades[ch] = cascade
	}
	return cascades, nil
}

// bandQ derives a peaking Q from the geometric distance to the neighboring
// grid points so adjacent bands cover the spectrum without deep ripple.
func bandQ(curve []EQBand, i int) float64 {
	lo := curve[i-1].FrequencyHz
	hi := curve[i+1].FrequencyHz
	bw := (hi - lo) / 2
	if bw <= 0 {
		return 1.0
	}
	q := curve[i].FrequencyHz / bw
	if q < 0.3 {
		q = 0.3
	}
	if q > 8 {
		q = 8
	}
	return q
}

// applyEQ runs the cascade over interleaved samples.
func applyEQ(samples []float64, channels int, cascades [][]*equalizer.Filter) {
	for i := 0; i < len(samples); i += channels {
		for ch := 0; ch < channels; ch++ {
			s := samples[i+ch]
			for _, f := range cascades[ch] {
				s = f.Apply(s)
			}
			samples[i+ch] = s
		}
	}
}
