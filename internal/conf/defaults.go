// conf/defaults.go
package conf

import (
	"runtime"

	"github.com/spf13/viper"
)

// Default chunking policy. The overlap must stay below half the chunk
// duration; ValidateSettings enforces this.
const (
	DefaultChunkSeconds   = 10.0
	DefaultOverlapSeconds = 0.1
	DefaultContextSeconds = 2.0
	MaxContextSeconds     = 2.0

	DefaultLevelMaxChangeDB   = 3.0
	DefaultLimiterCeilingDBTP = -0.3

	DefaultCacheMaxSizeBytes = int64(256 << 20) // 256 MiB
	DefaultCacheMaxEntries   = 512
	DefaultCacheTTLSeconds   = 3600.0
)

// DefaultFingerprintWorkers returns max(cpu/2, 1).
func DefaultFingerprintWorkers() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

// setDefaultConfig registers the default value of every recognized key with
// viper. Keys registered here must also appear in recognizedKeys.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("sample_rate", 44100)
	viper.SetDefault("chunk_seconds", DefaultChunkSeconds)
	viper.SetDefault("overlap_seconds", DefaultOverlapSeconds)
	viper.SetDefault("context_seconds", DefaultContextSeconds)
	viper.SetDefault("cache_max_size_bytes", DefaultCacheMaxSizeBytes)
	viper.SetDefault("cache_max_entries", DefaultCacheMaxEntries)
	viper.SetDefault("cache_ttl_seconds", DefaultCacheTTLSeconds)
	viper.SetDefault("fingerprint_workers", DefaultFingerprintWorkers())
	viper.SetDefault("fingerprint_max_retries", 0)
	viper.SetDefault("level_max_change_db", DefaultLevelMaxChangeDB)
	viper.SetDefault("limiter_ceiling_dbtp", DefaultLimiterCeilingDBTP)
	viper.SetDefault("default_preset", "adaptive")
	viper.SetDefault("default_intensity", 0.5)
	viper.SetDefault("database_path", "auralis.db")
	viper.SetDefault("presets_dir", "")
}

// DefaultSettings returns a Settings value populated with the same defaults
// setDefaultConfig registers, for callers that bypass viper (tests, embedded
// use).
func DefaultSettings() *Settings {
	return &Settings{
		Debug:                 false,
		SampleRate:            44100,
		ChunkSeconds:          DefaultChunkSeconds,
		OverlapSeconds:        DefaultOverlapSeconds,
		ContextSeconds:        DefaultContextSeconds,
		CacheMaxSizeBytes:     DefaultCacheMaxSizeBytes,
		CacheMaxEntries:       DefaultCacheMaxEntries,
		CacheTTLSeconds:       DefaultCacheTTLSeconds,
		FingerprintWorkers:    DefaultFingerprintWorkers(),
		FingerprintMaxRetries: 0,
		LevelMaxChangeDB:      DefaultLevelMaxChangeDB,
		LimiterCeilingDBTP:    DefaultLimiterCeilingDBTP,
		DefaultPreset:         "adaptive",
		DefaultIntensity:      0.5,
		DatabasePath:          "auralis.db",
		PresetsDir:            "",
	}
}
