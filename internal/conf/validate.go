// conf/validate.go
package conf

import (
	"github.com/auralis-audio/auralis/internal/errors"
)

// ValidateSettings checks every invariant of the configuration surface and
// normalizes auto values (fingerprint_workers <= 0 means max(cpu/2, 1)).
//
// The overlap/chunk constraint is load-bearing: the continuous-mode
// controller relies on each output sample coming from at most two source
// chunks, which holds only while overlap < chunk/2.
func ValidateSettings(s *Settings) error {
	if s.SampleRate <= 0 {
		return validationError("sample_rate must be positive, got %d", s.SampleRate)
	}
	if s.ChunkSeconds <= 0 {
		return validationError("chunk_seconds must be positive, got %g", s.ChunkSeconds)
	}
	if s.OverlapSeconds <= 0 {
		return validationError("overlap_seconds must be positive, got %g", s.OverlapSeconds)
	}
	if s.OverlapSeconds >= s.ChunkSeconds/2 {
		return errors.Newf("overlap_seconds (%g) must be less than half of chunk_seconds (%g)",
			s.OverlapSeconds, s.ChunkSeconds).
			Component("conf").
			Category(errors.CategoryContinuity).
			Build()
	}
	if s.ContextSeconds < 0 || s.ContextSeconds > MaxContextSeconds {
		return validationError("context_seconds must be within [0, %g], got %g", MaxContextSeconds, s.ContextSeconds)
	}
	if s.CacheMaxSizeBytes <= 0 {
		return validationError("cache_max_size_bytes must be positive, got %d", s.CacheMaxSizeBytes)
	}
	if s.CacheMaxEntries <= 0 {
		return validationError("cache_max_entries must be positive, got %d", s.CacheMaxEntries)
	}
	if s.CacheTTLSeconds < 0 {
		return validationError("cache_ttl_seconds must not be negative, got %g", s.CacheTTLSeconds)
	}
	if s.FingerprintWorkers <= 0 {
		s.FingerprintWorkers = DefaultFingerprintWorkers()
	}
	if s.FingerprintMaxRetries < 0 {
		return validationError("fingerprint_max_retries must not be negative, got %d", s.FingerprintMaxRetries)
	}
	if s.LevelMaxChangeDB <= 0 {
		return validationError("level_max_change_db must be positive, got %g", s.LevelMaxChangeDB)
	}
	if s.LimiterCeilingDBTP > 0 {
		return validationError("limiter_ceiling_dbtp must not be above 0 dBTP, got %g", s.LimiterCeilingDBTP)
	}
	if s.DefaultPreset == "" {
		return validationError("default_preset must not be empty")
	}
	if s.DefaultIntensity < 0 || s.DefaultIntensity > 1 {
		return validationError("default_intensity must be within [0, 1], got %g", s.DefaultIntensity)
	}
	return nil
}

func validationError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("conf").
		Category(errors.CategoryValidation).
		Build()
}
