// Package equalizer implements cascaded biquad filters used by the EQ and
// stereo stages of the mastering graph.
package equalizer

import (
	"fmt"
	"math"
)

// FilterType identifies the response shape of a Filter.
type FilterType string

const (
	LowPass   FilterType = "lowpass"
	HighPass  FilterType = "highpass"
	BandPass  FilterType = "bandpass"
	Peaking   FilterType = "peaking"
	LowShelf  FilterType = "lowshelf"
	HighShelf FilterType = "highshelf"
)

// Filter is a direct-form-I biquad with pre-computed normalized coefficients
// and per-pass state. The same filter instance must not be shared across
// channels: its state is indexed by cascade pass, not by channel.
type Filter struct {
	name FilterType

	// Normalized coefficients (divided by a0 once at construction).
	b0a0, b1a0, b2a0 float64
	a1a0, a2a0       float64

	// Per-pass delay lines.
	in1, in2   []float64
	out1, out2 []float64
}

// IsZero reports whether the filter is uninitialized.
func (f *Filter) IsZero() bool {
	return len(f.in1) == 0
}

// Passes returns the number of cascaded applications configured.
func (f *Filter) Passes() int {
	return len(f.in1)
}

// Type returns the filter's response shape.
func (f *Filter) Type() FilterType {
	return f.name
}

// NewFilter builds a filter from raw biquad coefficients. The coefficients
// are normalized by a0 once here so the hot path runs multiply-add only.
func NewFilter(name FilterType, a0, a1, a2, b0, b1, b2 float64, passes int) *Filter {
	return &Filter{
		name: name,
		b0a0: b0 / a0,
		b1a0: b1 / a0,
		b2a0: b2 / a0,
		a1a0: a1 / a0,
		a2a0: a2 / a0,
		in1:  make([]float64, passes),
		in2:  make([]float64, passes),
		out1: make([]float64, passes),
		out2: make([]float64, passes),
	}
}

func validate(sampleRate, freq, q float64, passes int) error {
	if passes < 1 {
		return fmt.Errorf("passes must be at least 1, got %d", passes)
	}
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}
	if freq <= 0 || freq >= sampleRate/2 {
		return fmt.Errorf("frequency %g outside (0, %g)", freq, sampleRate/2)
	}
	if q <= 0 {
		return fmt.Errorf("Q must be positive, got %g", q)
	}
	return nil
}

// NewLowPass creates a low-pass filter with the given cutoff and Q.
func NewLowPass(sampleRate, freq, q float64, passes int) (*Filter, error) {
	if err := validate(sampleRate, freq, q, passes); err != nil {
		return nil, err
	}
	omega := 2 * math.Pi * freq / sampleRate
	sn, cs := math.Sin(omega), math.Cos(omega)
	alpha := sn / (2 * q)

	b0 := (1 - cs) / 2
	b1 := 1 - cs
	b2 := (1 - cs) / 2
	a0 := 1 + alpha
	a1 := -2 * cs
	a2 := 1 - alpha
	return NewFilter(LowPass, a0, a1, a2, b0, b1, b2, passes), nil
}

// NewHighPass creates a high-pass filter with the given cutoff and Q.
func NewHighPass(sampleRate, freq, q float64, passes int) (*Filter, error) {
	if err := validate(sampleRate, freq, q, passes); err != nil {
		return nil, err
	}
	omega := 2 * math.Pi * freq / sampleRate
	sn, cs := math.Sin(omega), math.Cos(omega)
	alpha := sn / (2 * q)

	b0 := (1 + cs) / 2
	b1 := -(1 + cs)
	b2 := (1 + cs) / 2
	a0 := 1 + alpha
	a1 := -2 * cs
	a2 := 1 - alpha
	return NewFilter(HighPass, a0, a1, a2, b0, b1, b2, passes), nil
}

// NewBandPass creates a constant-skirt band-pass filter centered on freq.
func NewBandPass(sampleRate, freq, q float64, passes int) (*Filter, error) {
	if err := validate(sampleRate, freq, q, passes); err != nil {
		return nil, err
	}
	omega := 2 * math.Pi * freq / sampleRate
	sn, cs := math.Sin(omega), math.Cos(omega)
	alpha := sn / (2 * q)

	b0 := alpha
	b1 := 0.0
	b2 := -alpha
	a0 := 1 + alpha
	a1 := -2 * cs
	a2 := 1 - alpha
	return NewFilter(BandPass, a0, a1, a2, b0, b1, b2, passes), nil
}

// NewPeaking creates a peaking EQ filter with gainDB of boost or cut.
func NewPeaking(sampleRate, freq, q, gainDB float64, passes int) (*Filter, error) {
	if err := validate(sampleRate, freq, q, passes); err != nil {
		return nil, err
	}
	amp := math.Pow(10, gainDB/40)
	omega := 2 * math.Pi * freq / sampleRate
	sn, cs := math.Sin(omega), math.Cos(omega)
	alpha := sn / (2 * q)

	b0 := 1 + alpha*amp
	b1 := -2 * cs
	b2 := 1 - alpha*amp
	a0 := 1 + alpha/amp
	a1 := -2 * cs
	a2 := 1 - alpha/amp
	return NewFilter(Peaking, a0, a1, a2, b0, b1, b2, passes), nil
}

// NewLowShelf creates a low-shelf filter with gainDB below freq.
func NewLowShelf(sampleRate, freq, q, gainDB float64, passes int) (*Filter, error) {
	if err := validate(sampleRate, freq, q, passes); err != nil {
		return nil, err
	}
	amp := math.Pow(10, gainDB/40)
	omega := 2 * math.Pi * freq / sampleRate
	sn, cs := math.Sin(omega), math.Cos(omega)
	alpha := sn / (2 * q)
	beta := 2 * math.Sqrt(amp) * alpha

	b0 := amp * ((amp + 1) - (amp-1)*cs + beta)
	b1 := 2 * amp * ((amp - 1) - (amp+1)*cs)
	b2 := amp * ((amp + 1) - (amp-1)*cs - beta)
	a0 := (amp + 1) + (amp-1)*cs + beta
	a1 := -2 * ((amp - 1) + (amp+1)*cs)
	a2 := (amp + 1) + (amp-1)*cs - beta
	return NewFilter(LowShelf, a0, a1, a2, b0, b1, b2, passes), nil
}

// NewHighShelf creates a high-shelf filter with gainDB above freq.
func NewHighShelf(sampleRate, freq, q, gainDB float64, passes int) (*Filter, error) {
	if err := validate(sampleRate, freq, q, passes); err != nil {
		return nil, err
	}
	amp := math.Pow(10, gainDB/40)
	omega := 2 * math.Pi * freq / sampleRate
	sn, cs := math.Sin(omega), math.Cos(omega)
	alpha := sn / (2 * q)
	beta := 2 * math.Sqrt(amp) * alpha

	b0 := amp * ((amp + 1) + (amp-1)*cs + beta)
	b1 := -2 * amp * ((amp - 1) + (amp+1)*cs)
	b2 := amp * ((amp + 1) + (amp-1)*cs - beta)
	a0 := (amp + 1) - (amp-1)*cs + beta
	a1 := 2 * ((amp - 1) - (amp+1)*cs)
	a2 := (amp + 1) - (amp-1)*cs - beta
	return NewFilter(HighShelf, a0, a1, a2, b0, b1, b2, passes), nil
}

// Apply runs one sample through every configured pass and returns the result.
func (f *Filter) Apply(sample float64) float64 {
	for p := range f.in1 {
		out := f.b0a0*sample + f.b1a0*f.in1[p] + f.b2a0*f.in2[p] -
			f.a1a0*f.out1[p] - f.a2a0*f.out2[p]

		f.in2[p] = f.in1[p]
		f.in1[p] = sample
		f.out2[p] = f.out1[p]
		f.out1[p] = out

		sample = out
	}
	return sample
}

// ApplyBatch filters samples in place.
func (f *Filter) ApplyBatch(samples []float64) {
	for i, s := range samples {
		samples[i] = f.Apply(s)
	}
}

// Reset clears the delay lines.
func (f *Filter) Reset() {
	for p := range f.in1 {
		f.in1[p], f.in2[p] = 0, 0
		f.out1[p], f.out2[p] = 0, 0
	}
}
