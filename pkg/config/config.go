// Package config provides configuration loading and management for brainsim.
// It handles loading configuration from YAML files, applies BRAINSIM_*
// environment overrides and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Mask parameters
	Mask struct {
		// Path is the mask volume to load; empty selects the bundled default
		Path string `yaml:"path" env:"BRAINSIM_MASK_PATH"`

		// ResourceDir is where the bundled default mask is looked up
		ResourceDir string `yaml:"resourceDir" env:"BRAINSIM_RESOURCE_DIR"`
	} `yaml:"mask"`

	// Synthesis parameters
	Synthesis struct {
		// Mode selects what to generate: "spheres" or "gaussian"
		Mode string `yaml:"mode" env:"BRAINSIM_MODE"`

		// Radius of the centered sphere in voxels
		Radius float64 `yaml:"radius" env:"BRAINSIM_RADIUS"`

		// Sigma is the standard deviation of the added noise
		Sigma float64 `yaml:"sigma" env:"BRAINSIM_SIGMA"`

		// Intensities are the signal scales, one volume per entry.
		// Empty means a single intensity of sigma/10.
		Intensities []float64 `yaml:"intensities,omitempty" env:"BRAINSIM_INTENSITIES" envSeparator:","`

		// GaussianSigma is the per-axis spread of the gaussian pattern in voxels
		GaussianSigma []float64 `yaml:"gaussianSigma" env:"BRAINSIM_GAUSSIAN_SIGMA" envSeparator:","`

		// TotalIntensity is the in-mask sum of the gaussian pattern
		TotalIntensity float64 `yaml:"totalIntensity" env:"BRAINSIM_TOTAL_INTENSITY"`

		// Seed initializes the noise generator
		Seed uint64 `yaml:"seed" env:"BRAINSIM_SEED"`

		// NumCores bounds how many volumes are generated concurrently
		NumCores int `yaml:"numCores" env:"BRAINSIM_CORES"`
	} `yaml:"synthesis"`

	// Output parameters
	Output struct {
		// Dir is where generated volumes are written; empty means the working directory
		Dir string `yaml:"dir" env:"BRAINSIM_OUTPUT_DIR"`

		// Compress writes .nii.gz instead of .nii
		Compress bool `yaml:"compress" env:"BRAINSIM_COMPRESS"`

		// Manifest writes manifest.yaml next to the volumes
		Manifest bool `yaml:"manifest" env:"BRAINSIM_MANIFEST"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose" env:"BRAINSIM_VERBOSE"`
	} `yaml:"output"`

	// Log parameters
	Log struct {
		// File is the log file; empty logs to stderr
		File string `yaml:"file" env:"BRAINSIM_LOG_FILE"`

		// MaxSize is the rotation size in megabytes
		MaxSize int `yaml:"maxSize" env:"BRAINSIM_LOG_MAX_SIZE"`

		// MaxAge is the number of days to keep old logs
		MaxAge int `yaml:"maxAge" env:"BRAINSIM_LOG_MAX_AGE"`
	} `yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}

	cfg.Mask.Path = ""
	cfg.Mask.ResourceDir = filepath.Join(wd, "resources")

	cfg.Synthesis.Mode = "spheres"
	cfg.Synthesis.Radius = 5
	cfg.Synthesis.Sigma = 1
	cfg.Synthesis.Intensities = nil
	cfg.Synthesis.GaussianSigma = []float64{4, 4, 4}
	cfg.Synthesis.TotalIntensity = 1000
	cfg.Synthesis.Seed = 1
	cfg.Synthesis.NumCores = runtime.NumCPU()

	cfg.Output.Dir = wd
	cfg.Output.Compress = true
	cfg.Output.Manifest = true
	cfg.Output.Verbose = false

	cfg.Log.MaxSize = 100
	cfg.Log.MaxAge = 30

	return cfg
}

// LoadConfig loads configuration from a YAML file and then applies
// environment overrides. If the file doesn't exist, the defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot produce a volume
func (c *Config) Validate() error {
	switch c.Synthesis.Mode {
	case "spheres", "gaussian":
	default:
		return fmt.Errorf("unknown synthesis mode %q", c.Synthesis.Mode)
	}
	if c.Synthesis.Radius < 0 {
		return fmt.Errorf("radius must be non-negative, got %g", c.Synthesis.Radius)
	}
	if c.Synthesis.Sigma < 0 {
		return fmt.Errorf("sigma must be non-negative, got %g", c.Synthesis.Sigma)
	}
	if len(c.Synthesis.GaussianSigma) != 3 {
		return fmt.Errorf("gaussianSigma needs 3 values, got %d", len(c.Synthesis.GaussianSigma))
	}
	if c.Synthesis.NumCores < 1 {
		c.Synthesis.NumCores = 1
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
