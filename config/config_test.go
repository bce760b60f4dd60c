package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7-Dany/Stress-Strain/codec"
	"github.com/7-Dany/Stress-Strain/curve"
	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/specimen"
	"github.com/7-Dany/Stress-Strain/transport"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cal, err := cfg.Calibration.Resolve()
	require.NoError(t, err)
	assert.Equal(t, codec.DefaultCalibration(), cal)
	assert.Equal(t, transport.KindLoopback, cfg.Transport.Kind)
	assert.Equal(t, 20*time.Millisecond, cfg.Simulation.Pace)
	assert.Contains(t, cfg.String(), "rounded")
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeFile(t, "rig.json", `{
		"calibration": {"preset": "bench"},
		"specimen": {"shape": "rectangular", "width": 20, "height": 4, "gauge_length": 80},
		"material": {"yield_stress": 300},
		"transport": {"kind": "serial", "serial": {"port": "/dev/ttyACM0"}},
		"simulation": {"pace": "5ms"}
	}`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	cal, err := cfg.Calibration.Resolve()
	require.NoError(t, err)
	assert.Equal(t, codec.BenchCalibration(), cal)

	assert.Equal(t, specimen.ShapeRectangular, cfg.Specimen.Shape)
	assert.Equal(t, 80.0, cfg.Specimen.Area())
	assert.Equal(t, 300.0, cfg.Material.YieldStress)
	assert.Equal(t, 400.0, cfg.Material.UltimateStress, "fields absent from the layer keep their defaults")
	assert.Equal(t, transport.KindSerial, cfg.Transport.Kind)
	assert.Equal(t, "/dev/ttyACM0", cfg.Transport.Serial.Port)
	assert.Equal(t, 9600, cfg.Transport.Serial.Baud)
	assert.Equal(t, 5*time.Millisecond, cfg.Simulation.Pace)
}

func TestLoader_LoadYAML(t *testing.T) {
	path := writeFile(t, "rig.yaml", `
model:
  easing: sine
  fracture: stress
material:
  fracture_stress: 320
transport:
  kind: nats
  nats:
    urls: ["nats://broker:4222"]
    subject: lab.tensile
    reconnect_wait: 500ms
    ping_interval: 10s
ingest:
  read_timeout: 250ms
`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, curve.EasingSine, cfg.Model.Easing)
	assert.Equal(t, curve.FractureByStress, cfg.Model.Fracture)
	assert.Equal(t, 320.0, cfg.Material.FractureStress)
	assert.Equal(t, curve.DefaultDensity(), cfg.Model.Density)
	assert.Equal(t, []string{"nats://broker:4222"}, cfg.Transport.NATS.URLs)
	assert.Equal(t, "lab.tensile", cfg.Transport.NATS.Subject)
	assert.Equal(t, 500*time.Millisecond, cfg.Transport.NATS.ReconnectWait)
	assert.Equal(t, 10*time.Second, cfg.Transport.NATS.PingInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.Ingest.ReadTimeout)
}

func TestLoader_Layers(t *testing.T) {
	base := writeFile(t, "base.json", `{"specimen": {"diameter": 12}, "log": {"level": "debug"}}`)
	override := writeFile(t, "override.yml", "specimen:\n  gauge_length: 60\n")

	l := NewLoader()
	l.AddLayer(base)
	l.AddLayer(override)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, specimen.Rounded(12, 60), cfg.Specimen)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("TENSILE_TRANSPORT", "udp")
	t.Setenv("TENSILE_UDP_PORT", "15000")
	t.Setenv("TENSILE_NATS_URLS", "nats://a:4222,nats://b:4222")
	t.Setenv("TENSILE_SIM_PACE", "1ms")
	t.Setenv("TENSILE_METRICS", "true")
	t.Setenv("TENSILE_CALIBRATION_PRESET", "production")

	path := writeFile(t, "rig.json", `{"transport": {"kind": "serial"}, "udp": {"port": 1}}`)
	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, transport.KindUDP, cfg.Transport.Kind, "environment wins over files")
	assert.Equal(t, 15000, cfg.Transport.UDP.Port)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.Transport.NATS.URLs)
	assert.Equal(t, time.Millisecond, cfg.Simulation.Pace)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, PresetProduction, cfg.Calibration.Preset)
}

func TestLoader_BadEnv(t *testing.T) {
	tests := map[string]string{
		"TENSILE_UDP_PORT": "many",
		"TENSILE_SIM_PACE": "soon",
		"TENSILE_METRICS":  "perhaps",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := NewLoader().Load()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestLoader_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{"unknown preset", `{"calibration": {"preset": "lab-9"}}`},
		{"zero piston", `{"calibration": {"piston_area_m2": 0}}`},
		{"bad shape", `{"specimen": {"shape": "hexagonal"}}`},
		{"ultimate below yield", `{"material": {"ultimate_stress": 100}}`},
		{"unknown easing", `{"model": {"easing": "cubic"}}`},
		{"unknown transport", `{"transport": {"kind": "smoke"}}`},
		{"negative pace", `{"simulation": {"pace": "-1s"}}`},
		{"bad log format", `{"log": {"format": "xml"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "rig.json", tt.config)
			_, err := NewLoader().LoadFile(path)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "got %v", err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestLoader_ValidationDisabled(t *testing.T) {
	path := writeFile(t, "rig.json", `{"specimen": {"shape": "hexagonal"}}`)
	l := NewLoader()
	l.EnableValidation(false)
	cfg, err := l.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, specimen.Shape("hexagonal"), cfg.Specimen.Shape)
}

func TestLoader_FileErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing", func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.json") }},
		{"wrong extension", func(t *testing.T) string { return writeFile(t, "rig.toml", "x = 1") }},
		{"malformed json", func(t *testing.T) string { return writeFile(t, "rig.json", `{"specimen": `) }},
		{"malformed yaml", func(t *testing.T) string { return writeFile(t, "rig.yaml", "specimen: [unclosed") }},
		{"too deep", func(t *testing.T) string {
			return writeFile(t, "rig.json", strings.Repeat("[", maxJSONDepth+1)+strings.Repeat("]", maxJSONDepth+1))
		}},
		{"bad duration", func(t *testing.T) string { return writeFile(t, "rig.json", `{"simulation": {"pace": "fast"}}`) }},
		{"bad nested duration", func(t *testing.T) string {
			return writeFile(t, "rig.json", `{"transport": {"nats": {"drain_timeout": "soon"}}}`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadFile(tt.path(t))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestConfig_SaveAndReload(t *testing.T) {
	cfg := Default()
	cfg.Specimen = specimen.Rounded(12.5, 62.5)
	cfg.Transport.Kind = transport.KindWebSocket
	cfg.Simulation.Pace = 3 * time.Millisecond

	path := filepath.Join(t.TempDir(), "saved.json")
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("reloaded config differs (-saved +loaded):\n%s", diff)
	}
}

func TestConfig_Clone(t *testing.T) {
	cfg := Default()
	cfg.Transport.NATS.URLs = []string{"nats://a:4222"}

	clone := cfg.Clone()
	clone.Transport.NATS.URLs[0] = "nats://b:4222"
	clone.Specimen.Diameter = 99

	assert.Equal(t, "nats://a:4222", cfg.Transport.NATS.URLs[0])
	assert.Equal(t, 10.0, cfg.Specimen.Diameter)
	assert.Nil(t, (*Config)(nil).Clone())
}
