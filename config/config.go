// Package config loads the tensile pipeline configuration from layered JSON
// or YAML files and TENSILE_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/7-Dany/Stress-Strain/codec"
	"github.com/7-Dany/Stress-Strain/curve"
	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/specimen"
	"github.com/7-Dany/Stress-Strain/transport"
)

// Calibration presets
const (
	PresetProduction = "production"
	PresetBench      = "bench"
)

// CalibrationConfig holds explicit calibration constants. A non-empty
// Preset replaces them with a named rig.
type CalibrationConfig struct {
	Preset string `json:"preset,omitempty"`
	codec.Calibration
}

// Resolve returns the calibration to use
func (c CalibrationConfig) Resolve() (codec.Calibration, error) {
	switch c.Preset {
	case "":
		return c.Calibration, nil
	case PresetProduction:
		return codec.DefaultCalibration(), nil
	case PresetBench:
		return codec.BenchCalibration(), nil
	default:
		return codec.Calibration{}, errors.Invalidf("config", "Resolve", "unknown calibration preset %q", c.Preset)
	}
}

// SimulationConfig controls the simulator
type SimulationConfig struct {
	Pace time.Duration `json:"pace"`
	// Ramp > 0 streams a dummy code ramp of that length instead of a curve
	Ramp int `json:"ramp,omitempty"`
}

// IngestConfig controls the ingest loop
type IngestConfig struct {
	ReadTimeout time.Duration `json:"read_timeout"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// LogConfig controls logging
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Config is the complete application configuration
type Config struct {
	Calibration CalibrationConfig `json:"calibration"`
	Specimen    specimen.Geometry `json:"specimen"`
	Material    curve.Params      `json:"material"`
	Model       curve.Model       `json:"model"`
	Transport   transport.Config  `json:"transport"`
	Simulation  SimulationConfig  `json:"simulation"`
	Ingest      IngestConfig      `json:"ingest"`
	Metrics     MetricsConfig     `json:"metrics"`
	Log         LogConfig         `json:"log"`
}

// Default returns the production rig with a 10 mm round steel bar on a
// loopback transport.
func Default() *Config {
	return &Config{
		Calibration: CalibrationConfig{Calibration: codec.DefaultCalibration()},
		Specimen:    specimen.Rounded(10, 50),
		Material: curve.Params{
			YieldStress:    250,
			UltimateStress: 400,
			ModulusGPa:     200,
			FractureStrain: 0.2,
			FractureStress: 250,
		},
		Model:      curve.DefaultModel(),
		Transport:  transport.DefaultConfig(),
		Simulation: SimulationConfig{Pace: 20 * time.Millisecond},
		Ingest:     IngestConfig{ReadTimeout: 100 * time.Millisecond},
		Metrics:    MetricsConfig{Enabled: false, Port: 9090, Path: "/metrics"},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Validate checks every section
func (c *Config) Validate() error {
	cal, err := c.Calibration.Resolve()
	if err != nil {
		return err
	}
	if err := cal.Validate(); err != nil {
		return errors.Wrap(err, "Config", "Validate", "calibration")
	}
	if err := c.Specimen.Validate(); err != nil {
		return errors.Wrap(err, "Config", "Validate", "specimen")
	}
	if err := curve.Validate(c.Material, c.Model); err != nil {
		return errors.Wrap(err, "Config", "Validate", "material")
	}
	if err := c.Transport.Validate(); err != nil {
		return errors.Wrap(err, "Config", "Validate", "transport")
	}
	if c.Simulation.Pace < 0 || c.Simulation.Ramp < 0 {
		return errors.Invalidf("Config", "Validate", "simulation pace and ramp cannot be negative")
	}
	if c.Ingest.ReadTimeout < 0 {
		return errors.Invalidf("Config", "Validate", "ingest read timeout cannot be negative")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 0 || c.Metrics.Port > 65535) {
		return errors.Invalidf("Config", "Validate", "metrics port %d out of range", c.Metrics.Port)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return errors.Invalidf("Config", "Validate", "unknown log format %q", c.Log.Format)
	}
	return nil
}

// Clone returns a deep copy
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Transport.NATS.URLs = append([]string(nil), c.Transport.NATS.URLs...)
	return &clone
}

// SaveToFile writes the configuration as indented JSON
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "marshal")
	}
	return safeWriteFile(path, data)
}

// String returns a one-line summary for logs
func (c *Config) String() string {
	return fmt.Sprintf("Config{specimen: %s, transport: %s, preset: %q}",
		c.Specimen.String(), c.Transport.Describe(), c.Calibration.Preset)
}
