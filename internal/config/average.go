package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical averaging defaults file.
const DefaultConfigPath = "config/average.defaults.json"

// AverageConfig is the file-backed configuration of an averaging run.
// Pointer fields distinguish "not set" from zero; the Get* methods supply
// the defaults for anything the file omits.
type AverageConfig struct {
	// Run parameters
	Oversampling *float64 `json:"oversampling,omitempty"`
	Iterations   *int     `json:"iterations,omitempty"`

	// Worker pool
	Workers        *int     `json:"workers,omitempty"` // 0 derives the pool size from worker_fraction
	WorkerFraction *float64 `json:"worker_fraction,omitempty"`

	// Progress stream
	ProgressInterval *string `json:"progress_interval,omitempty"` // duration string like "500ms"
	EventBuffer      *int    `json:"event_buffer,omitempty"`

	// Resource limits
	MaxImagePixels *int `json:"max_image_pixels,omitempty"`

	// Input handling and outputs
	Prealign *bool   `json:"prealign,omitempty"`
	RunsDB   *string `json:"runs_db,omitempty"`
	PlotsDir *string `json:"plots_dir,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyAverageConfig returns a config with every field unset.
func EmptyAverageConfig() *AverageConfig {
	return &AverageConfig{}
}

// DefaultAverageConfig returns a config with every field set to its default.
func DefaultAverageConfig() *AverageConfig {
	return &AverageConfig{
		Oversampling:     ptrFloat64(1),
		Iterations:       ptrInt(3),
		Workers:          ptrInt(0),
		WorkerFraction:   ptrFloat64(0.75),
		ProgressInterval: ptrString("500ms"),
		EventBuffer:      ptrInt(16),
		MaxImagePixels:   ptrInt(2048 * 2048),
		Prealign:         ptrBool(true),
		RunsDB:           ptrString(""),
		PlotsDir:         ptrString(""),
	}
}

// LoadAverageConfig loads an AverageConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their defaults through the Get* methods.
func LoadAverageConfig(path string) (*AverageConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := EmptyAverageConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *AverageConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadAverageConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *AverageConfig) Validate() error {
	if c.Oversampling != nil {
		if v := *c.Oversampling; math.IsNaN(v) || math.IsInf(v, 0) || v < 1 {
			return fmt.Errorf("oversampling must be a finite value >= 1, got %v", v)
		}
	}
	if c.Iterations != nil && *c.Iterations < 0 {
		return fmt.Errorf("iterations must be non-negative, got %d", *c.Iterations)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.WorkerFraction != nil {
		if v := *c.WorkerFraction; !(v > 0 && v <= 1) {
			return fmt.Errorf("worker_fraction must be in (0, 1], got %v", v)
		}
	}
	if c.ProgressInterval != nil && *c.ProgressInterval != "" {
		d, err := time.ParseDuration(*c.ProgressInterval)
		if err != nil {
			return fmt.Errorf("invalid progress_interval '%s': %w", *c.ProgressInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("progress_interval must be positive, got %s", d)
		}
	}
	if c.EventBuffer != nil && *c.EventBuffer < 0 {
		return fmt.Errorf("event_buffer must be non-negative, got %d", *c.EventBuffer)
	}
	if c.MaxImagePixels != nil && *c.MaxImagePixels < 1 {
		return fmt.Errorf("max_image_pixels must be positive, got %d", *c.MaxImagePixels)
	}
	return nil
}

// GetOversampling returns the oversampling value or the default.
func (c *AverageConfig) GetOversampling() float64 {
	if c.Oversampling == nil {
		return 1
	}
	return *c.Oversampling
}

// GetIterations returns the iterations value or the default.
func (c *AverageConfig) GetIterations() int {
	if c.Iterations == nil {
		return 3
	}
	return *c.Iterations
}

// GetWorkers returns the fixed pool size, 0 when derived from the fraction.
func (c *AverageConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetWorkerFraction returns the worker_fraction value or the default.
func (c *AverageConfig) GetWorkerFraction() float64 {
	if c.WorkerFraction == nil {
		return 0.75
	}
	return *c.WorkerFraction
}

// GetProgressInterval parses and returns the ProgressInterval as a time.Duration.
func (c *AverageConfig) GetProgressInterval() time.Duration {
	if c.ProgressInterval == nil || *c.ProgressInterval == "" {
		return 500 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.ProgressInterval)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// GetEventBuffer returns the event_buffer value or the default.
func (c *AverageConfig) GetEventBuffer() int {
	if c.EventBuffer == nil {
		return 16
	}
	return *c.EventBuffer
}

// GetMaxImagePixels returns the max_image_pixels value or the default.
func (c *AverageConfig) GetMaxImagePixels() int {
	if c.MaxImagePixels == nil {
		return 2048 * 2048
	}
	return *c.MaxImagePixels
}

// GetPrealign returns the prealign value or the default.
func (c *AverageConfig) GetPrealign() bool {
	if c.Prealign == nil {
		return true
	}
	return *c.Prealign
}

// GetRunsDB returns the run history database path, empty when disabled.
func (c *AverageConfig) GetRunsDB() string {
	if c.RunsDB == nil {
		return ""
	}
	return *c.RunsDB
}

// GetPlotsDir returns the plot output directory, empty when disabled.
func (c *AverageConfig) GetPlotsDir() string {
	if c.PlotsDir == nil {
		return ""
	}
	return *c.PlotsDir
}
