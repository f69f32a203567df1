// Package config loads the pipeline configuration: engine settings per pass,
// the classification boundary, spike parameters per filter, and the field
// of view.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"cosmos/sieve/internal/catalog"
	"cosmos/sieve/internal/clean"
	"cosmos/sieve/internal/engine"
	"cosmos/sieve/internal/segmap"
)

// EnvPath names the environment variable consulted when no --config is given.
const EnvPath = "SIEVE_CONFIG"

// maxFileSize caps config files at 1MB.
const maxFileSize = 1 * 1024 * 1024

// Config is the root configuration.
type Config struct {
	Engine     EngineConfig                 `json:"engine"`
	Classifier clean.Boundary               `json:"classifier"`
	Spikes     map[string]clean.SpikeParams `json:"spikes"`
	// Filter selects the spike parameters, e.g. "F606W" or "814".
	Filter    string      `json:"filter"`
	MagCutoff float64     `json:"mag_cutoff"`
	Margin    int         `json:"segmentation_margin"`
	Field     clean.Field `json:"field"`
	// MaskWorkers bounds masking parallelism; 0 uses every CPU.
	MaskWorkers int `json:"mask_workers"`
	// Ledger is the SQLite run ledger path; empty disables it.
	Ledger string `json:"ledger"`
}

// EngineConfig configures the external detection engine.
type EngineConfig struct {
	Binary     string          `json:"binary"`
	Timeout    string          `json:"timeout"` // duration string like "30m"
	KeepConfig bool            `json:"keep_config"`
	Columns    []string        `json:"columns"`
	Bright     engine.Settings `json:"bright"`
	Faint      engine.Settings `json:"faint"`
}

// TimeoutDuration parses Timeout. Empty means no limit.
func (e EngineConfig) TimeoutDuration() time.Duration {
	if e.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(e.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// requiredColumns are read by at least one cleaning stage.
var requiredColumns = []string{
	catalog.ColNumber, catalog.ColX, catalog.ColY, catalog.ColA, catalog.ColB,
	catalog.ColXMin, catalog.ColXMax, catalog.ColYMin, catalog.ColYMax,
	catalog.ColMuMax, catalog.ColMagAuto, catalog.ColFluxAuto, catalog.ColFluxErrAuto,
}

// Default returns the built-in configuration.
func Default() *Config {
	spikes := make(map[string]clean.SpikeParams, len(clean.DefaultSpikes))
	for k, v := range clean.DefaultSpikes {
		spikes[k] = v
	}
	return &Config{
		Engine: EngineConfig{
			Timeout: "2h",
			Columns: append([]string(nil), catalog.OutputColumns...),
			Bright:  engine.BrightSettings(),
			Faint:   engine.FaintSettings(),
		},
		Classifier:  clean.DefaultBoundary,
		Spikes:      spikes,
		Filter:      "F606W",
		MagCutoff:   clean.DefaultMagCutoff,
		Margin:      segmap.DefaultMargin,
		Field:       clean.DefaultField,
		MaskWorkers: 0,
		Ledger:      "sieve.db",
	}
}

// Load reads a JSON config from path on top of Default. Fields missing from
// the file keep their defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Resolve loads the config named by path, falling back to $SIEVE_CONFIG and
// then to Default.
func Resolve(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Margin < 0 {
		return fmt.Errorf("segmentation_margin must be non-negative, got %d", c.Margin)
	}
	if c.MaskWorkers < 0 {
		return fmt.Errorf("mask_workers must be non-negative, got %d", c.MaskWorkers)
	}
	if math.IsNaN(c.MagCutoff) || math.IsInf(c.MagCutoff, 0) {
		return fmt.Errorf("mag_cutoff must be finite, got %v", c.MagCutoff)
	}
	if c.Engine.Timeout != "" {
		if _, err := time.ParseDuration(c.Engine.Timeout); err != nil {
			return fmt.Errorf("invalid engine.timeout '%s': %w", c.Engine.Timeout, err)
		}
	}
	have := make(map[string]bool, len(c.Engine.Columns))
	for _, col := range c.Engine.Columns {
		have[col] = true
	}
	for _, col := range requiredColumns {
		if !have[col] {
			return fmt.Errorf("engine.columns must include %s", col)
		}
	}
	if _, _, _, _, err := c.Field.Sides(); err != nil {
		return fmt.Errorf("invalid field: %w", err)
	}
	if c.Filter != "" {
		if _, err := c.SpikeParams(); err != nil {
			return err
		}
	}
	for name, p := range c.Spikes {
		if p.Width < 0 {
			return fmt.Errorf("spikes.%s.width must be non-negative, got %v", name, p.Width)
		}
	}
	return nil
}

// SpikeParams returns the spike parameters for the configured filter.
func (c *Config) SpikeParams() (clean.SpikeParams, error) {
	return clean.LookupSpikes(c.Spikes, c.Filter)
}
