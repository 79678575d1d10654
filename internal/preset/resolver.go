package preset

import (
	"fmt"
	"math"
	"sync"

	"github.com/auralis-audio/auralis/internal/dsp"
	"github.com/auralis-audio/auralis/internal/errors"
	"github.com/auralis-audio/auralis/internal/fingerprint"
)

// Resolver turns (preset, fingerprint, intensity) into processing
// parameters. Resolution is a pure function of its inputs; a small memo
// cache keyed by (name, fingerprint hash, intensity) makes per-chunk
// resolution free.
type Resolver struct {
	limiterCeilingDB float64

	mu      sync.RWMutex
	presets map[string]Definition
	cache   map[cacheKey]*dsp.ProcessingParameters
}

type cacheKey struct {
	name          string
	fpHash        uint64
	intensityBits uint64
}

// NewResolver creates a resolver carrying the built-in presets.
func NewResolver(limiterCeilingDB float64) *Resolver {
	presets := make(map[string]Definition, len(builtins))
	for name, def := range builtins {
		presets[name] = def
	}
	return &Resolver{
		limiterCeilingDB: limiterCeilingDB,
		presets:          presets,
		cache:            make(map[cacheKey]*dsp.ProcessingParameters),
	}
}

// Register adds or replaces a preset definition.
func (r *Resolver) Register(def Definition) error {
	if def.Name == "" {
		return errors.Newf("preset definition without a name").
			Component("preset").
			Category(errors.CategoryValidation).
			Build()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presets[def.Name] = def
	// Registered definitions may shadow an earlier one; drop memoized
	// parameters for that name.
	for key := range r.cache {
		if key.name == def.Name {
			delete(r.cache, key)
		}
	}
	return nil
}

// Names returns every known preset name.
func (r *Resolver) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.presets))
	for name := range r.presets {
		names = append(names, name)
	}
	return names
}

// Resolve produces the parameters for one chunk. fp may be nil, in which
// case adaptive presets degenerate to a neutral profile. Unknown names and
// out-of-range intensities fail; there is no silent fallback.
func (r *Resolver) Resolve(name string, fp *fingerprint.Fingerprint, intensity float64) (*dsp.ProcessingParameters, error) {
	if math.IsNaN(intensity) || intensity < 0 || intensity > 1 {
		return nil, errors.Newf("intensity %g outside [0, 1]", intensity).
			Component("preset").
			Category(errors.CategoryPresetBadIntensity).
			Build()
	}

	r.mu.RLock()
	def, ok := r.presets[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Newf("unknown preset %q", name).
			Component("preset").
			Category(errors.CategoryPresetUnknown).
			Build()
	}

	key := cacheKey{name: name, intensityBits: math.Float64bits(intensity)}
	if fp != nil {
		key.fpHash = fp.Hash()
	}

	r.mu.RLock()
	cached := r.cache[key]
	r.mu.RUnlock()
	if cached != nil {
		return cached.Clone(), nil
	}

	params := r.materialize(def, fp, intensity)
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("preset %q resolved invalid parameters: %w", name, err)
	}

	r.mu.Lock()
	r.cache[key] = params.Clone()
	r.mu.Unlock()
	return params, nil
}

// materialize scales the definition's full-intensity targets by intensity.
// Every control moves linearly and monotonically; intensity 0 leaves every
// stage disabled, which is a measurable no-op.
func (r *Resolver) materialize(def Definition, fp *fingerprint.Fingerprint, intensity float64) *dsp.ProcessingParameters {
	if def.Adaptive {
		def = adapt(def, fp)
	}

	p := dsp.Neutral(r.limiterCeilingDB)
	if intensity == 0 {
		return p
	}

	curve := curveFor(def.LowShelfDB*intensity, def.PresenceDB*intensity, def.HighShelfDB*intensity)
	if !flatCurve(curve) {
		p.EQ = dsp.EQParams{Enabled: true, Curve: curve}
	}

	if depth := def.CompressionDepth * intensity; depth > 0 {
		p.Dynamics = dsp.DynamicsParams{
			Enabled:     true,
			ThresholdDB: -10 - 14*depth, // deeper presets reach further down
			Ratio:       1 + 3*depth,
			AttackMs:    15,
			ReleaseMs:   250,
			KneeDB:      6,
			MakeupDB:    2 * depth,
		}
	}

	if def.WidthDelta != 0 || def.MonoBassHz > 0 {
		p.Stereo = dsp.StereoParams{
			Enabled:    true,
			Width:      1 + def.WidthDelta*intensity,
			MonoBassHz: def.MonoBassHz,
		}
	}

	p.SaturationAmount = def.Saturation * intensity

	if def.TargetLUFS != 0 {
		p.Loudness = dsp.LoudnessParams{
			Enabled:    true,
			TargetLUFS: def.TargetLUFS,
			// Full intensity may move a chunk up to 6 dB toward target.
			MaxGainDB: 6 * intensity,
		}
	}

	return p
}
