package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the model and service constants that operators may
// override per deployment. Fields are pointers so a partial JSON file only
// overrides what it names; the Get* methods supply defaults for the rest.
type TuningConfig struct {
	// Propagation model params
	LogisticSlope        *float64 `json:"logistic_slope,omitempty"`
	LogisticThreshold    *float64 `json:"logistic_threshold,omitempty"`
	PathLossCoefficient  *float64 `json:"path_loss_coefficient,omitempty"`
	AbsorptionCoeff      *float64 `json:"absorption_coefficient,omitempty"`
	AbsorptionExponent   *float64 `json:"absorption_exponent,omitempty"`
	DitherEnabled        *bool    `json:"dither_enabled,omitempty"`
	SmoothPasses         *int     `json:"smooth_passes,omitempty"`

	// Service params
	RefreshInterval  *string `json:"refresh_interval,omitempty"` // duration string like "10m"
	MapCacheSize     *int    `json:"map_cache_size,omitempty"`
	SDOCacheTTL      *string `json:"sdo_cache_ttl,omitempty"` // duration string like "30m"
	WeatherBatchSize *int    `json:"weather_batch_size,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.LogisticSlope != nil && *c.LogisticSlope <= 0 {
		return fmt.Errorf("logistic_slope must be positive, got %f", *c.LogisticSlope)
	}
	if c.LogisticThreshold != nil {
		if *c.LogisticThreshold < 0 || *c.LogisticThreshold > 1 {
			return fmt.Errorf("logistic_threshold must be between 0 and 1, got %f", *c.LogisticThreshold)
		}
	}
	if c.PathLossCoefficient != nil && *c.PathLossCoefficient < 0 {
		return fmt.Errorf("path_loss_coefficient must be non-negative, got %g", *c.PathLossCoefficient)
	}
	if c.AbsorptionCoeff != nil && *c.AbsorptionCoeff < 0 {
		return fmt.Errorf("absorption_coefficient must be non-negative, got %f", *c.AbsorptionCoeff)
	}
	if c.AbsorptionExponent != nil && *c.AbsorptionExponent <= 0 {
		return fmt.Errorf("absorption_exponent must be positive, got %f", *c.AbsorptionExponent)
	}
	if c.SmoothPasses != nil && *c.SmoothPasses < 0 {
		return fmt.Errorf("smooth_passes must be non-negative, got %d", *c.SmoothPasses)
	}

	// Validate RefreshInterval can be parsed if set
	if c.RefreshInterval != nil && *c.RefreshInterval != "" {
		if _, err := time.ParseDuration(*c.RefreshInterval); err != nil {
			return fmt.Errorf("invalid refresh_interval '%s': %w", *c.RefreshInterval, err)
		}
	}

	// Validate SDOCacheTTL can be parsed if set
	if c.SDOCacheTTL != nil && *c.SDOCacheTTL != "" {
		if _, err := time.ParseDuration(*c.SDOCacheTTL); err != nil {
			return fmt.Errorf("invalid sdo_cache_ttl '%s': %w", *c.SDOCacheTTL, err)
		}
	}

	if c.MapCacheSize != nil && *c.MapCacheSize < 1 {
		return fmt.Errorf("map_cache_size must be at least 1, got %d", *c.MapCacheSize)
	}
	if c.WeatherBatchSize != nil {
		if *c.WeatherBatchSize < 1 || *c.WeatherBatchSize > 200 {
			return fmt.Errorf("weather_batch_size must be between 1 and 200, got %d", *c.WeatherBatchSize)
		}
	}

	return nil
}

// GetLogisticSlope returns the logistic_slope value or the default.
// Steepness of the reliability sigmoid around the SNR-margin threshold.
func (c *TuningConfig) GetLogisticSlope() float64 {
	if c.LogisticSlope == nil {
		return 18.0 // default
	}
	return *c.LogisticSlope
}

// GetLogisticThreshold returns the logistic_threshold value or the default.
func (c *TuningConfig) GetLogisticThreshold() float64 {
	if c.LogisticThreshold == nil {
		return 0.42 // default
	}
	return *c.LogisticThreshold
}

// GetPathLossCoefficient returns the path_loss_coefficient value or the default.
func (c *TuningConfig) GetPathLossCoefficient() float64 {
	if c.PathLossCoefficient == nil {
		return 4e-5 // default, per km of great-circle distance
	}
	return *c.PathLossCoefficient
}

// GetAbsorptionCoeff returns the absorption_coefficient value or the default.
func (c *TuningConfig) GetAbsorptionCoeff() float64 {
	if c.AbsorptionCoeff == nil {
		return 0.5 // default
	}
	return *c.AbsorptionCoeff
}

// GetAbsorptionExponent returns the absorption_exponent value or the default.
// Applied to (10/MHz) in the D-layer absorption term.
func (c *TuningConfig) GetAbsorptionExponent() float64 {
	if c.AbsorptionExponent == nil {
		return 2.2 // default
	}
	return *c.AbsorptionExponent
}

// GetDitherEnabled returns the dither_enabled value or the default.
func (c *TuningConfig) GetDitherEnabled() bool {
	if c.DitherEnabled == nil {
		return true // default
	}
	return *c.DitherEnabled
}

// GetSmoothPasses returns the smooth_passes value or the default.
func (c *TuningConfig) GetSmoothPasses() int {
	if c.SmoothPasses == nil {
		return 1 // default
	}
	return *c.SmoothPasses
}

// GetRefreshInterval parses and returns the RefreshInterval as a time.Duration.
func (c *TuningConfig) GetRefreshInterval() time.Duration {
	if c.RefreshInterval == nil || *c.RefreshInterval == "" {
		return 10 * time.Minute // default
	}
	d, err := time.ParseDuration(*c.RefreshInterval)
	if err != nil {
		return 10 * time.Minute // default on parse error
	}
	return d
}

// GetMapCacheSize returns the map_cache_size value or the default.
func (c *TuningConfig) GetMapCacheSize() int {
	if c.MapCacheSize == nil {
		return 100 // default
	}
	return *c.MapCacheSize
}

// GetSDOCacheTTL parses and returns the SDOCacheTTL as a time.Duration.
func (c *TuningConfig) GetSDOCacheTTL() time.Duration {
	if c.SDOCacheTTL == nil || *c.SDOCacheTTL == "" {
		return 30 * time.Minute // default
	}
	d, err := time.ParseDuration(*c.SDOCacheTTL)
	if err != nil {
		return 30 * time.Minute // default on parse error
	}
	return d
}

// GetWeatherBatchSize returns the weather_batch_size value or the default.
func (c *TuningConfig) GetWeatherBatchSize() int {
	if c.WeatherBatchSize == nil {
		return 50 // default
	}
	return *c.WeatherBatchSize
}
