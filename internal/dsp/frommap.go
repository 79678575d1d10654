package dsp

import (
	"github.com/auralis-audio/auralis/internal/errors"
)

// FromMap converts a loosely-keyed mapping into the canonical typed
// parameter value. This is the ONLY place such a conversion may happen;
// stages always receive *ProcessingParameters, never a map. Unknown keys are
// rejected so a typo cannot silently disable a stage.
func FromMap(m map[string]any) (*ProcessingParameters, error) {
	p := &ProcessingParameters{}

	for key, raw := range m {
		var err error
		switch key {
		case "input_gain_db":
			p.InputGainDB, err = toFloat(key, raw)
		case "dc_removal":
			p.DCRemoval, err = toBool(key, raw)
		case "eq_enabled":
			p.EQ.Enabled, err = toBool(key, raw)
		case "eq_curve":
			p.EQ.Curve, err = toCurve(raw)
		case "dynamics_enabled":
			p.Dynamics.Enabled, err = toBool(key, raw)
		case "dynamics_threshold_db":
			p.Dynamics.ThresholdDB, err = toFloat(key, raw)
		case "dynamics_ratio":
			p.Dynamics.Ratio, err = toFloat(key, raw)
		case "dynamics_attack_ms":
			p.Dynamics.AttackMs, err = toFloat(key, raw)
		case "dynamics_release_ms":
			p.Dynamics.ReleaseMs, err = toFloat(key, raw)
		case "dynamics_knee_db":
			p.Dynamics.KneeDB, err = toFloat(key, raw)
		case "dynamics_makeup_db":
			p.Dynamics.MakeupDB, err = toFloat(key, raw)
		case "stereo_enabled":
			p.Stereo.Enabled, err = toBool(key, raw)
		case "stereo_width":
			p.Stereo.Width, err = toFloat(key, raw)
		case "mono_bass_hz":
			p.Stereo.MonoBassHz, err = toFloat(key, raw)
		case "saturation_amount":
			p.SaturationAmount, err = toFloat(key, raw)
		case "loudness_enabled":
			p.Loudness.Enabled, err = toBool(key, raw)
		case "target_lufs":
			p.Loudness.TargetLUFS, err = toFloat(key, raw)
		case "loudness_max_gain_db":
			p.Loudness.MaxGainDB, err = toFloat(key, raw)
		case "limiter_ceiling_db":
			p.LimiterCeilingDB, err = toFloat(key, raw)
		default:
			return nil, errors.Newf("unknown processing parameter %q", key).
				Component("dsp").
				Category(errors.CategoryValidation).
				Build()
		}
		if err != nil {
			return nil, err
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func toFloat(key string, v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, errors.Newf("parameter %q: expected number, got %T", key, v).
		Component("dsp").
		Category(errors.CategoryValidation).
		Build()
}

func toBool(key string, v any) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, errors.Newf("parameter %q: expected bool, got %T", key, v).
		Component("dsp").
		Category(errors.CategoryValidation).
		Build()
}

func toCurve(v any) ([]EQBand, error) {
	badCurve := func() error {
		return errors.Newf("eq_curve: expected list of [frequency_hz, gain_db] pairs").
			Component("dsp").
			Category(errors.CategoryValidation).
			Build()
	}

	pairs, ok := v.([][2]float64)
	if ok {
		curve := make([]EQBand, len(pairs))
		for i, pr := range pairs {
			curve[i] = EQBand{FrequencyHz: pr[0], GainDB: pr[1]}
		}
		return curve, nil
	}

	list, ok := v.([]any)
	if !ok {
		return nil, badCurve()
	}
	curve := make([]EQBand, 0, len(list))
	for _, el := range list {
		pair, ok := el.([]any)
		if !ok || len(pair) != 2 {
			return nil, badCurve()
		}
		freq, err := toFloat("eq_curve.frequency", pair[0])
		if err != nil {
			return nil, err
		}
		gain, err := toFloat("eq_curve.gain", pair[1])
		if err != nil {
			return nil, err
		}
		curve = append(curve, EQBand{FrequencyHz: freq, GainDB: gain})
	}
	return curve, nil
}
