package codec

import (
	"math"
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/types"
)

func newCodec(t *testing.T, cal Calibration) *Codec {
	t.Helper()
	c, err := New(cal)
	require.NoError(t, err)
	return c
}

func TestDecode_FullScale(t *testing.T) {
	c := newCodec(t, DefaultCalibration())

	chk.Float64(t, "force at 0", 1e-9, c.DecodeForce(0), 0)
	chk.Float64(t, "force at 1023", 1e-6, c.DecodeForce(1023), 400000)
	chk.Float64(t, "disp at 0", 1e-12, c.DecodeDisplacement(0), 0)
	chk.Float64(t, "disp at 1023", 1e-12, c.DecodeDisplacement(1023), 50)
	assert.InDelta(t, c.Calibration().FullScaleForce(), c.DecodeForce(1023), 1e-6)
}

func TestEncode_RoundTripEveryCode(t *testing.T) {
	for _, cal := range []Calibration{DefaultCalibration(), BenchCalibration()} {
		c := newCodec(t, cal)
		for code := 0; code <= cal.ADCMax; code++ {
			got := c.Encode(c.DecodeForce(code), c.DecodeDisplacement(code))
			if got.Pressure != code || got.Displacement != code || got.Saturated() {
				t.Fatalf("round trip of code %d gave %+v", code, got)
			}
		}
	}
}

func TestEncode_Saturation(t *testing.T) {
	c := newCodec(t, DefaultCalibration())

	tests := []struct {
		name        string
		force, disp float64
		want        Codes
	}{
		{"negative force", -10, 5, Codes{Pressure: 0, Displacement: 102, PressureClamped: true}},
		{"force over range", 1e6, 0, Codes{Pressure: 1023, Displacement: 0, PressureClamped: true}},
		{"displacement over range", 0, 75, Codes{Pressure: 0, Displacement: 1023, DisplacementClamped: true}},
		{"negative displacement", 0, -1, Codes{DisplacementClamped: true}},
		{"NaN force", math.NaN(), 0, Codes{PressureClamped: true}},
		{"mid scale", 200000, 25, Codes{Pressure: 511, Displacement: 511}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Encode(tt.force, tt.disp))
		})
	}
}

func TestEncode_Truncates(t *testing.T) {
	c := newCodec(t, DefaultCalibration())
	step := c.DecodeForce(1)

	got := c.Encode(step*10.99, 0)
	assert.Equal(t, 10, got.Pressure)
	assert.False(t, got.PressureClamped)
}

func TestEncodeSample_Decode(t *testing.T) {
	c := newCodec(t, DefaultCalibration())
	s := types.Sample{Force: c.DecodeForce(300), Displacement: c.DecodeDisplacement(42)}

	codes := c.EncodeSample(s)
	assert.Equal(t, 300, codes.Pressure)
	assert.Equal(t, 42, codes.Displacement)
	assert.InDelta(t, s.Force, c.Decode(codes).Force, 1e-9)
	assert.False(t, codes.Channel(types.ChannelDisplacement))
}

func TestNew_InvalidCalibration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Calibration)
	}{
		{"zero voltage", func(c *Calibration) { c.MaxVoltage = 0 }},
		{"negative pressure", func(c *Calibration) { c.MaxPressureBar = -1 }},
		{"NaN piston", func(c *Calibration) { c.PistonAreaM2 = math.NaN() }},
		{"zero travel", func(c *Calibration) { c.PotTravelMM = 0 }},
		{"zero adc", func(c *Calibration) { c.ADCMax = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := DefaultCalibration()
			tt.mutate(&cal)
			_, err := New(cal)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}
