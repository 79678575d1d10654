// conf/config.go
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings holds the recognized configuration surface of the mastering core.
// Any key outside this set is an error at config load.
type Settings struct {
	Debug bool `mapstructure:"debug"` // true to enable debug logging

	// Output sample rate used for the player's position accounting. The
	// input file's native rate is preserved through the pipeline.
	SampleRate int `mapstructure:"sample_rate"`

	// Chunking policy. Constraint: 0 < overlap_seconds < chunk_seconds/2.
	ChunkSeconds   float64 `mapstructure:"chunk_seconds"`
	OverlapSeconds float64 `mapstructure:"overlap_seconds"`
	ContextSeconds float64 `mapstructure:"context_seconds"`

	// Rendered-chunk cache bounds.
	CacheMaxSizeBytes int64   `mapstructure:"cache_max_size_bytes"`
	CacheMaxEntries   int     `mapstructure:"cache_max_entries"`
	CacheTTLSeconds   float64 `mapstructure:"cache_ttl_seconds"`

	// Fingerprint extraction pool.
	FingerprintWorkers    int `mapstructure:"fingerprint_workers"`
	FingerprintMaxRetries int `mapstructure:"fingerprint_max_retries"`

	// Continuous-mode level smoothing and limiter ceiling.
	LevelMaxChangeDB   float64 `mapstructure:"level_max_change_db"`
	LimiterCeilingDBTP float64 `mapstructure:"limiter_ceiling_dbtp"`

	// Mastering defaults.
	DefaultPreset    string  `mapstructure:"default_preset"`
	DefaultIntensity float64 `mapstructure:"default_intensity"`

	// Collaborator paths.
	DatabasePath string `mapstructure:"database_path"`
	PresetsDir   string `mapstructure:"presets_dir"`
}

// recognizedKeys is the closed set of configuration keys, maintained by hand.
// viper.AllKeys includes registered defaults, so every key set in
// setDefaultConfig must also appear here; any key not here fails the load.
var recognizedKeys = map[string]struct{}{
	"debug":                   {},
	"sample_rate":             {},
	"chunk_seconds":           {},
	"overlap_seconds":         {},
	"context_seconds":         {},
	"cache_max_size_bytes":    {},
	"cache_max_entries":       {},
	"cache_ttl_seconds":       {},
	"fingerprint_workers":     {},
	"fingerprint_max_retries": {},
	"level_max_change_db":     {},
	"limiter_ceiling_dbtp":    {},
	"default_preset":          {},
	"default_intensity":       {},
	"database_path":           {},
	"presets_dir":             {},
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file, with registered defaults for keys it
// omits, into a Settings value. Environment variables are not consulted.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := rejectUnknownKeys(); err != nil {
		return nil, err
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settings, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// rejectUnknownKeys fails the load when the configuration file contains keys
// outside the recognized surface.
func rejectUnknownKeys() error {
	for _, key := range viper.AllKeys() {
		if _, ok := recognizedKeys[key]; !ok {
			return fmt.Errorf("unrecognized configuration key %q", key)
		}
	}
	return nil
}

// GetDefaultConfigPaths returns the ordered list of directories searched for
// config.yaml: current directory first, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "auralis"))
	}
	return paths, nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[len(configPaths)-1], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// UpdateSettings replaces the settings in memory after validating them.
func UpdateSettings(newSettings *Settings) error {
	if err := ValidateSettings(newSettings); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = newSettings
	return nil
}
