package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/transport"
)

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a loader reading TENSILE_* variables
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: true,
		envPrefix:  "TENSILE",
	}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load applies defaults, every layer, then environment overrides
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "load "+path)
		}
		merged, err := l.mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "merge "+path)
		}
		cfg = merged
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRaw reads a JSON or YAML file into a generic map
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
		}
	}

	if err := l.parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// mergeFromMap overrides only the fields present in the map
func (l *Loader) mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// durationFields are the key paths holding durations
var durationFields = [][]string{
	{"simulation", "pace"},
	{"ingest", "read_timeout"},
	{"transport", "nats", "reconnect_wait"},
	{"transport", "nats", "ping_interval"},
	{"transport", "nats", "max_backoff"},
	{"transport", "nats", "drain_timeout"},
}

// parseDurations converts duration strings such as "20ms" to nanoseconds
func (l *Loader) parseDurations(data map[string]any) error {
	for _, path := range durationFields {
		section := data
		for _, key := range path[:len(path)-1] {
			next, ok := section[key].(map[string]any)
			if !ok {
				section = nil
				break
			}
			section = next
		}
		if section == nil {
			continue
		}
		key := path[len(path)-1]
		s, ok := section[key].(string)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", errors.ErrInvalidConfig, strings.Join(path, "."), err)
		}
		section[key] = d.Nanoseconds()
	}
	return nil
}

// applyEnvOverrides applies TENSILE_* environment variables
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"_CALIBRATION_PRESET", &cfg.Calibration.Preset},
		{"_SERIAL_PORT", &cfg.Transport.Serial.Port},
		{"_UDP_BIND", &cfg.Transport.UDP.Bind},
		{"_UDP_REMOTE", &cfg.Transport.UDP.Remote},
		{"_NATS_SUBJECT", &cfg.Transport.NATS.Subject},
		{"_WS_URL", &cfg.Transport.WebSocket.URL},
		{"_WS_LISTEN", &cfg.Transport.WebSocket.Listen},
		{"_LOG_LEVEL", &cfg.Log.Level},
		{"_LOG_FORMAT", &cfg.Log.Format},
	}
	for _, s := range strs {
		val, err := l.env(s.key)
		if err != nil {
			return err
		}
		if val != "" {
			*s.dst = val
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"_SERIAL_BAUD", &cfg.Transport.Serial.Baud},
		{"_UDP_PORT", &cfg.Transport.UDP.Port},
		{"_METRICS_PORT", &cfg.Metrics.Port},
	}
	for _, i := range ints {
		val, err := l.env(i.key)
		if err != nil {
			return err
		}
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.Invalidf("Loader", "applyEnvOverrides", "%s%s: %v", l.envPrefix, i.key, err)
		}
		*i.dst = n
	}

	if val, err := l.env("_TRANSPORT"); err != nil {
		return err
	} else if val != "" {
		cfg.Transport.Kind = transport.Kind(val)
	}
	if val, err := l.env("_NATS_URLS"); err != nil {
		return err
	} else if val != "" {
		cfg.Transport.NATS.URLs = strings.Split(val, ",")
	}
	if val, err := l.env("_SIM_PACE"); err != nil {
		return err
	} else if val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return errors.Invalidf("Loader", "applyEnvOverrides", "%s_SIM_PACE: %v", l.envPrefix, err)
		}
		cfg.Simulation.Pace = d
	}
	if val, err := l.env("_METRICS"); err != nil {
		return err
	} else if val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return errors.Invalidf("Loader", "applyEnvOverrides", "%s_METRICS: %v", l.envPrefix, err)
		}
		cfg.Metrics.Enabled = enabled
	}
	return nil
}

func (l *Loader) env(suffix string) (string, error) {
	key := l.envPrefix + suffix
	val := os.Getenv(key)
	if err := validateEnvVar(key, val); err != nil {
		return "", errors.WrapInvalid(err, "Loader", "env", "read "+key)
	}
	return val, nil
}
