// Package config loads settings for the levenshtein command.
//
// Precedence, highest first:
//  1. Command-line flags
//  2. Environment variables (LEVENSHTEIN_*)
//  3. YAML config file (--config)
//  4. Built-in defaults
//
// Environment variables:
//   - LEVENSHTEIN_USE_GPU=true
//   - LEVENSHTEIN_BACKEND="auto", "vulkan" or "software"
//   - LEVENSHTEIN_PADDING=64
//   - LEVENSHTEIN_WORKGROUP_SIZE=64
//   - LEVENSHTEIN_WORKERS=0
//   - LEVENSHTEIN_CAPACITY=0 (0 sizes the session to the batch)
//   - LEVENSHTEIN_FENCE_TIMEOUT="30s"
//   - LEVENSHTEIN_FORMAT="grid", "csv" or "json"
//   - LEVENSHTEIN_NORMALIZE=true
//   - LEVENSHTEIN_FALLBACK=true
//   - LEVENSHTEIN_VERBOSE=false
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Milo4uk/levenshtein-distance/internal/kernel"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "LEVENSHTEIN_"

// Output formats.
const (
	FormatGrid = "grid"
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Config holds the command's settings.
type Config struct {
	// UseGPU selects the session path instead of the CPU reference.
	UseGPU bool `yaml:"use_gpu"`
	// Backend is "auto", "vulkan" or "software".
	Backend string `yaml:"backend"`
	// Padding is the longest word, in runes.
	Padding       int `yaml:"padding"`
	WorkgroupSize int `yaml:"workgroup_size"`
	// Workers for the software device; 0 means GOMAXPROCS.
	Workers int `yaml:"workers"`
	// Capacity of the session; 0 sizes it to the batch.
	Capacity     int           `yaml:"capacity"`
	FenceTimeout time.Duration `yaml:"fence_timeout"`
	Format       string        `yaml:"format"`
	// Normalize applies Unicode NFC to input words.
	Normalize bool `yaml:"normalize"`
	// Fallback runs the CPU path when no session can be created.
	Fallback bool `yaml:"fallback"`
	Verbose  bool `yaml:"verbose"`
}

// LoadDefaults returns the built-in defaults.
func LoadDefaults() *Config {
	return &Config{
		UseGPU:        false,
		Backend:       "auto",
		Padding:       kernel.DefaultPadding,
		WorkgroupSize: kernel.DefaultWorkgroupSize,
		FenceTimeout:  30 * time.Second,
		Format:        FormatGrid,
		Normalize:     true,
		Fallback:      true,
	}
}

// LoadFromFile reads defaults overridden by the YAML file at path and then
// by the environment. A missing file is not an error; an empty path skips
// the file.
func LoadFromFile(path string) (*Config, error) {
	cfg := LoadDefaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFromEnv returns the defaults overridden by the environment.
func LoadFromEnv() *Config {
	cfg := LoadDefaults()
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyEnv() {
	c.UseGPU = getEnvBool("USE_GPU", c.UseGPU)
	c.Backend = getEnvStr("BACKEND", c.Backend)
	c.Padding = getEnvInt("PADDING", c.Padding)
	c.WorkgroupSize = getEnvInt("WORKGROUP_SIZE", c.WorkgroupSize)
	c.Workers = getEnvInt("WORKERS", c.Workers)
	c.Capacity = getEnvInt("CAPACITY", c.Capacity)
	c.FenceTimeout = getEnvDuration("FENCE_TIMEOUT", c.FenceTimeout)
	c.Format = getEnvStr("FORMAT", c.Format)
	c.Normalize = getEnvBool("NORMALIZE", c.Normalize)
	c.Fallback = getEnvBool("FALLBACK", c.Fallback)
	c.Verbose = getEnvBool("VERBOSE", c.Verbose)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case "", "auto", "vulkan", "gpu", "software", "cpu":
	default:
		return fmt.Errorf("invalid backend: %q", c.Backend)
	}
	if err := kernel.ValidatePadding(c.Padding); err != nil {
		return fmt.Errorf("invalid padding: %w", err)
	}
	if err := kernel.ValidateWorkgroupSize(c.WorkgroupSize); err != nil {
		return fmt.Errorf("invalid workgroup size: %w", err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid workers: %d", c.Workers)
	}
	if c.Capacity < 0 {
		return fmt.Errorf("invalid capacity: %d", c.Capacity)
	}
	if c.FenceTimeout < 0 {
		return fmt.Errorf("invalid fence timeout: %v", c.FenceTimeout)
	}
	switch c.Format {
	case FormatGrid, FormatCSV, FormatJSON:
	default:
		return fmt.Errorf("invalid format: %q (want grid, csv or json)", c.Format)
	}
	return nil
}

// getEnvStr returns environment variable or default
func getEnvStr(key, defaultVal string) string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool returns environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
